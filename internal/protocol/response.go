package protocol

// Fixed protocol responses.
const (
	ResponseOK             = "OK\n"
	ResponseRejected       = "ERR: Configuration not accepted\n"
	ResponseUnknownCommand = "ERR: Unknown command\n"
)

// InformationResponse wraps device information text into an OK response.
func InformationResponse(info string) string {
	return "OK " + info + "\n"
}
