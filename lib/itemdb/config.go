package itemdb

import (
	"database/sql"
	"net/url"
)

const DefaultFile = "<dev_state>/items.db"

// Config selects the database items are exported to, a remote url wins over
// a local file.
type Config struct {
	File      string `json:"file"`
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

// DSN returns the data source name OpenDB expects.
func (config Config) DSN() string {
	if config.Url == "" {
		if config.File == "" {
			return DefaultFile
		}
		return config.File
	}

	if config.AuthToken == "" {
		return config.Url
	}
	values := url.Values{}
	values.Add("authToken", config.AuthToken)
	return config.Url + "?" + values.Encode()
}

// OpenDB opens the configured database.
func (config Config) OpenDB() (*sql.DB, error) {
	return OpenDB(config.DSN())
}
