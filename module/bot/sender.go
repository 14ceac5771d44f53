package bot

// Button is one inline-keyboard button; Data travels back through the
// callback-data protocol (course:<id>, test:<id>, ans:<id>:<v>,
// finish:<id>, back:courses).
type Button struct {
	Text string
	Data string
}

// Sender is the outbound half of the messaging platform. The transport
// adapter is responsible for serializing sends; the engine and the
// background loops call it from multiple goroutines.
type Sender interface {
	Send(chatID int64, text string)
	SendKeyboard(chatID int64, text string, buttons []Button)
}
