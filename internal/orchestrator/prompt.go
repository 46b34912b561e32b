package orchestrator

import (
	"fmt"
	"strings"

	"github.com/soyeahso/autoreply/internal/domain"
)

// defaultBasePrompt is used when no base prompt is configured.
const defaultBasePrompt = "You are a helpful customer service assistant. " +
	"Answer questions about the available services and help customers place orders. " +
	"Be concise and friendly. If you do not know something, say so."

// buildSystemPrompt composes the base prompt, the rendered catalog of active
// offerings, and the customer's conversation context.
func (o *Orchestrator) buildSystemPrompt(customer domain.CustomerContext) (string, error) {
	base := o.cfg.BasePrompt
	if base == "" {
		base = defaultBasePrompt
	}

	services, err := o.catalog.ActiveServices()
	if err != nil {
		return "", fmt.Errorf("orchestrator: loading services: %w", err)
	}
	packages, err := o.catalog.ActivePackages()
	if err != nil {
		return "", fmt.Errorf("orchestrator: loading packages: %w", err)
	}
	methods, err := o.catalog.ActivePaymentMethods()
	if err != nil {
		return "", fmt.Errorf("orchestrator: loading payment methods: %w", err)
	}

	var b strings.Builder
	b.WriteString(base)

	if len(services) > 0 {
		b.WriteString("\n\n## Services\n")
		for _, svc := range services {
			b.WriteString("- " + svc.Name)
			if svc.Description != "" {
				b.WriteString(": " + svc.Description)
			}
			b.WriteString("\n")
		}
	}

	if len(packages) > 0 {
		byService := make(map[string]string, len(services))
		for _, svc := range services {
			byService[svc.ID] = svc.Name
		}
		b.WriteString("\n## Packages\n")
		for _, p := range packages {
			fmt.Fprintf(&b, "- %s (%s): %.2f %s", p.Name, byService[p.ServiceID], p.Price, p.Currency)
			if p.Description != "" {
				b.WriteString(" - " + p.Description)
			}
			b.WriteString("\n")
		}
	}

	if len(methods) > 0 {
		b.WriteString("\n## Payment methods\n")
		for _, m := range methods {
			b.WriteString("- " + m.Name)
			if m.Account != "" {
				fmt.Fprintf(&b, " (%s", m.Account)
				if m.Holder != "" {
					b.WriteString(", " + m.Holder)
				}
				b.WriteString(")")
			}
			b.WriteString("\n")
		}
	}

	ctx := renderCustomer(customer)
	if ctx != "" {
		b.WriteString("\n## Customer context\n")
		b.WriteString(ctx)
	}

	return b.String(), nil
}

func renderCustomer(c domain.CustomerContext) string {
	var lines []string
	add := func(label, value string) {
		if value != "" {
			lines = append(lines, fmt.Sprintf("- %s: %s", label, value))
		}
	}
	add("Name", c.Name)
	add("Language", c.Language)
	add("Current intent", c.Intent)
	add("Selected service", c.SelectedService)
	add("Selected package", c.SelectedPackage)
	add("Pending order", c.PendingOrder)
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
