// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/storeflow/storeflow/pkg/actions/discount"
	"github.com/storeflow/storeflow/pkg/actions/email"
	"github.com/storeflow/storeflow/pkg/actions/logaction"
	"github.com/storeflow/storeflow/pkg/actions/webhook"
	"github.com/storeflow/storeflow/pkg/registry"
)

// NewRegistry creates the action registry with every built-in action
// registered. Email delivery and discount issuing run against their logging
// adapters until real providers are wired in.
func NewRegistry(logger *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(logger)

	reg.Register(webhook.NewActionFactory())
	reg.Register(email.NewActionFactory(&email.LogMailer{Logger: logger}))
	reg.Register(discount.NewActionFactory(&discount.LogIssuer{Logger: logger}))
	reg.Register(logaction.NewActionFactory())

	return reg
}
