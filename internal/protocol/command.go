package protocol

import "github.com/micro-nova/ibeacon-go/internal/models"

// Command is one parsed command line. It is one of Information, Configure or Unknown.
type Command interface {
	command()
}

// Information requests the device identity and current configuration.
type Information struct{}

// Configure replaces the beacon identity.
type Configure struct {
	UUID  [models.UUIDLen]byte
	Major uint16
	Minor uint16
}

// Unknown is a line that did not parse into a command.
type Unknown struct {
	Line string
}

func (Information) command() {}
func (Configure) command()   {}
func (Unknown) command()     {}

// Configuration returns the record described by the command.
func (c Configure) Configuration() models.Configuration {
	return models.Configuration{UUID: c.UUID, Major: c.Major, Minor: c.Minor}
}
