package main

import (
	"github.com/Shivay00001/aria-runtime/pkg/models"
)

func testKernelConfig() models.KernelConfig {
	return models.KernelConfig{
		PrimaryProvider:    "ollama",
		PrimaryModel:       "llama3.1",
		MaxSteps:           5,
		MaxCostUSD:         1,
		AllowedPermissions: []models.ToolPermission{models.PermissionNone},
	}
}
