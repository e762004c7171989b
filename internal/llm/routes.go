package llm

import (
	"fmt"
	"strings"

	"github.com/dockhardman/General-LLM-Stack/internal/llm/configuration"
	llmerrors "github.com/dockhardman/General-LLM-Stack/internal/llm/errors"
)

// resolveRoute maps a public model name to a provider route. Configured
// routes win; otherwise "provider/model" values route directly when the
// provider is configured.
func (c *client) resolveRoute(model string) (configuration.ModelRoute, error) {
	if route, ok := c.config.Routes[model]; ok {
		return route, nil
	}

	if strings.Contains(model, "/") {
		route, err := configuration.ParseRoute(model)
		if err != nil {
			return configuration.ModelRoute{}, fmt.Errorf("%w: %s", llmerrors.ErrUnknownModel, model)
		}
		if _, ok := c.config.Providers[route.Provider]; ok {
			return route, nil
		}
	}

	return configuration.ModelRoute{}, fmt.Errorf("%w: %s", llmerrors.ErrUnknownModel, model)
}
