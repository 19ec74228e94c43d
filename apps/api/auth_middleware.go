package main

import (
	"github.com/getkin/kin-openapi/openapi3"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	provisioninghandler "github.com/zenGate-Global/hubmetrix/domains/provisioning/be/handler"
	platformmiddleware "github.com/zenGate-Global/hubmetrix/platform/go/middleware"
	"github.com/zenGate-Global/hubmetrix/platform/go/problems"
)

// buildGuards constructs the contract validator and the billing notification credentials check.
func buildGuards(cfg config, spec *openapi3.T) provisioninghandler.Guards {
	return provisioninghandler.Guards{
		Contract:    platformmiddleware.ContractValidator(spec, problems.ValidatorErrorHandler),
		BillingAuth: chimw.BasicAuth("hubmetrix billing", map[string]string{cfg.BillingWebhookUser: cfg.BillingWebhookPass}),
	}
}

func logSecuritySchemes(logger *zap.Logger, spec *openapi3.T) {
	names := make([]string, 0, len(spec.Components.SecuritySchemes))
	for name := range spec.Components.SecuritySchemes {
		names = append(names, name)
	}
	logger.Info("loaded security schemes", zap.String("path", "contracts/hubmetrix.yaml"), zap.Strings("names", names))
}
