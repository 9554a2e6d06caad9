package config

import (
	"github.com/garyjia/formflow/internal/container"
)

// ToContainerConfig converts the file-based Config into the container's
// configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			BusyTimeout:     c.Database.BusyTimeout,
			MigrationsDir:   c.Database.MigrationsDir,
		},
		Auth: container.AuthConfig{
			JWTSecret:     c.Auth.JWTSecret,
			PublicKeyPath: c.Auth.PublicKeyPath,
			Issuer:        c.Auth.Issuer,
			Audience:      c.Auth.Audience,
			AdminRole:     c.Auth.AdminRole,
		},
		Server: container.ServerConfig{
			Host:            c.Server.Host,
			Port:            c.Server.Port,
			ReadTimeout:     c.Server.ReadTimeout,
			WriteTimeout:    c.Server.WriteTimeout,
			ShutdownTimeout: c.Server.ShutdownTimeout,
		},
	}
}
