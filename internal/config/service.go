package config

import (
	"errors"
	"fmt"
)

type ServiceType string

const (
	// ServiceTypeSingular runs every worker in one process.
	ServiceTypeSingular ServiceType = ""
	// ServiceTypeAPI runs the admin API and the publish intake.
	ServiceTypeAPI ServiceType = "api"
	// ServiceTypeDelivery runs the delivery engine.
	ServiceTypeDelivery ServiceType = "delivery"
)

var (
	ErrInvalidServiceType    = errors.New("invalid service type")
	ErrMismatchedServiceType = errors.New("service type mismatch")
)

func (s ServiceType) String() string {
	if s == ServiceTypeSingular {
		return "singular"
	}
	return string(s)
}

func ServiceTypeFromString(s string) (ServiceType, error) {
	switch s {
	case "":
		return ServiceTypeSingular, nil
	case "api":
		return ServiceTypeAPI, nil
	case "delivery":
		return ServiceTypeDelivery, nil
	}
	return ServiceTypeSingular, fmt.Errorf("%w: %s", ErrInvalidServiceType, s)
}

func (c *Config) GetService() (ServiceType, error) {
	return ServiceTypeFromString(c.Service)
}

// MustGetService panics unless the config has been validated.
func (c *Config) MustGetService() ServiceType {
	if !c.validated {
		panic("config must be validated before use")
	}
	service, err := c.GetService()
	if err != nil {
		panic(err)
	}
	return service
}
