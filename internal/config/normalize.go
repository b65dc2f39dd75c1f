package config

import "strings"

// normalize expands path fields and trims string settings so the rest of the
// engine can rely on absolute, clean values.
func (c *Config) normalize() error {
	var err error
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return err
	}
	if c.Paths.DestinationDir, err = expandPath(c.Paths.DestinationDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}

	c.Library.BaseURL = strings.TrimRight(strings.TrimSpace(c.Library.BaseURL), "/")
	c.OAuth.TokenURL = strings.TrimSpace(c.OAuth.TokenURL)
	c.OAuth.ClientID = strings.TrimSpace(c.OAuth.ClientID)
	c.OAuth.ClientSecret = strings.TrimSpace(c.OAuth.ClientSecret)
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}
