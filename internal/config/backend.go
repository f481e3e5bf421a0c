package config

// ConfigBackend abstracts config storage so load and manage logic stay
// independent of where values live. The default backend is a JSON file at
// an XDG-compatible path.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}
