// Package input samples the keyboard and mouse for the controller.
package input

// Virtual key codes used outside the configurable keybinds.
const (
	VK_LBUTTON = 0x01
	VK_SHIFT   = 0x10
	VK_CONTROL = 0x11
	VK_MENU    = 0x12
	VK_R       = 0x52
)

type KeyState uint8

const (
	KeyUp KeyState = iota
	// KeyPressed is the first frame a key is down.
	KeyPressed
	KeyDown
	// KeyReleased is the first frame a key is up again.
	KeyReleased
)

func (s KeyState) String() string {
	switch s {
	case KeyPressed:
		return "pressed"
	case KeyDown:
		return "down"
	case KeyReleased:
		return "released"
	}
	return "up"
}

// Keyboard tracks edge states of the keys it has been asked about. It is
// only used from the controller goroutine.
type Keyboard struct {
	poll func(vk uint16) bool
	keys map[uint16]KeyState
}

// NewKeyboard samples keys with poll, which reports whether a key is
// currently held.
func NewKeyboard(poll func(vk uint16) bool) *Keyboard {
	return &Keyboard{
		poll: poll,
		keys: make(map[uint16]KeyState),
	}
}

// Update samples every key seen so far plus keys, advancing their states by
// one frame.
func (k *Keyboard) Update(keys ...uint16) {
	for _, vk := range keys {
		if _, ok := k.keys[vk]; !ok {
			k.keys[vk] = KeyUp
		}
	}
	for vk, state := range k.keys {
		k.keys[vk] = next(state, k.poll(vk))
	}
}

func next(state KeyState, down bool) KeyState {
	switch {
	case down && (state == KeyUp || state == KeyReleased):
		return KeyPressed
	case down:
		return KeyDown
	case state == KeyPressed || state == KeyDown:
		return KeyReleased
	}
	return KeyUp
}

func (k *Keyboard) State(vk uint16) KeyState {
	return k.keys[vk]
}

// Held reports whether vk is down this frame.
func (k *Keyboard) Held(vk uint16) bool {
	s := k.keys[vk]
	return s == KeyPressed || s == KeyDown
}

// Pressed reports whether vk went down this frame.
func (k *Keyboard) Pressed(vk uint16) bool {
	return k.keys[vk] == KeyPressed
}

// Chord reports whether every key is held and at least one of them went
// down this frame, so holding a chord triggers once. An empty chord never
// triggers.
func (k *Keyboard) Chord(keys []uint16) bool {
	if len(keys) == 0 {
		return false
	}
	var fresh bool
	for _, vk := range keys {
		if !k.Held(vk) {
			return false
		}
		fresh = fresh || k.Pressed(vk)
	}
	return fresh
}
