package models

// Factory identity written on first boot or after the flash was erased.
const (
	DefaultUUIDByte = 0xCC
	DefaultMajor    = 1
	DefaultMinor    = 1
)

// DefaultConfiguration returns the compiled-in factory configuration.
func DefaultConfiguration() Configuration {
	var c Configuration
	for i := range c.UUID {
		c.UUID[i] = DefaultUUIDByte
	}
	c.Major = DefaultMajor
	c.Minor = DefaultMinor
	return c
}
