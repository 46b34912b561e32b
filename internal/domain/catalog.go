package domain

// Service is a sellable service rendered into the system prompt catalog.
type Service struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Package is a priced tier of a service.
type Package struct {
	ID          string  `json:"id"`
	ServiceID   string  `json:"serviceId"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Currency    string  `json:"currency"`
	Description string  `json:"description,omitempty"`
}

// PaymentMethod is an accepted payment channel rendered into the catalog.
type PaymentMethod struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Account string `json:"account,omitempty"`
	Holder  string `json:"holder,omitempty"`
}

// CustomerContext carries per-conversation fields used for prompt construction.
type CustomerContext struct {
	Name            string `json:"name,omitempty"`
	Language        string `json:"language,omitempty"`
	Intent          string `json:"intent,omitempty"`
	SelectedService string `json:"selectedService,omitempty"`
	SelectedPackage string `json:"selectedPackage,omitempty"`
	PendingOrder    string `json:"pendingOrder,omitempty"`
}
