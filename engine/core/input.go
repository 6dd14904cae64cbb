package core

// Key code definitions
type KeyCode uint16

const (
	KEY_UNKNOWN   KeyCode = 0x00
	KEY_BACKSPACE KeyCode = 0x08
	KEY_TAB       KeyCode = 0x09
	KEY_ENTER     KeyCode = 0x0D
	KEY_ESCAPE    KeyCode = 0x1B
	KEY_SPACE     KeyCode = 0x20
	KEY_LEFT      KeyCode = 0x25
	KEY_UP        KeyCode = 0x26
	KEY_RIGHT     KeyCode = 0x27
	KEY_DOWN      KeyCode = 0x28

	KEY_A KeyCode = 0x41 + iota - 10
	KEY_B
	KEY_C
	KEY_D
	KEY_E
	KEY_F
	KEY_G
	KEY_H
	KEY_I
	KEY_J
	KEY_K
	KEY_L
	KEY_M
	KEY_N
	KEY_O
	KEY_P
	KEY_Q
	KEY_R
	KEY_S
	KEY_T
	KEY_U
	KEY_V
	KEY_W
	KEY_X
	KEY_Y
	KEY_Z

	KEYS_MAX_KEYS KeyCode = 0xFF
)

// Keyboard state structure
type KeyboardState struct {
	Keys [KEYS_MAX_KEYS + 1]bool
}

// Input holds the current and previous keyboard state.
type Input struct {
	current  KeyboardState
	previous KeyboardState
}

func NewInput() *Input {
	return &Input{}
}

// Update copies the current state to the previous one. Call once per frame
// after all input for the frame was processed.
func (in *Input) Update() {
	in.previous = in.current
}

// ProcessKey records a key transition and reports whether the state changed.
func (in *Input) ProcessKey(key KeyCode, pressed bool) bool {
	if key > KEYS_MAX_KEYS || in.current.Keys[key] == pressed {
		return false
	}
	in.current.Keys[key] = pressed
	return true
}

func (in *Input) isKeyDown(key KeyCode) bool {
	return key <= KEYS_MAX_KEYS && in.current.Keys[key]
}

// WasKeyDown reports whether key was down when the previous frame ended.
func (in *Input) WasKeyDown(key KeyCode) bool {
	return key <= KEYS_MAX_KEYS && in.previous.Keys[key]
}
