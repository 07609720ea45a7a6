package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Service:         "default",
		CredentialsPath: "",
		SocketDir:       "",
		DialTimeoutMS:   2000,
		StepTimeoutMS:   5000,
		MaxReplyBytes:   1 << 20,
		LogLevel:        "info",
	}
}
