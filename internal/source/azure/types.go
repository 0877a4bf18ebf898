package azure

// Subscription is the response from GET /subscriptions/{id}.
type Subscription struct {
	ID             string `json:"id"`
	SubscriptionID string `json:"subscriptionId"`
	DisplayName    string `json:"displayName"`
	State          string `json:"state"`
}

// ResourceGroupList is the response from listing resource groups.
type ResourceGroupList struct {
	Value    []ResourceGroup `json:"value"`
	NextLink string          `json:"nextLink"`
}

// ResourceGroup is one Azure resource group.
type ResourceGroup struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Location string            `json:"location"`
	Tags     map[string]string `json:"tags"`
}

// AlertList is the response from the Alerts Management list endpoint.
type AlertList struct {
	Value    []Alert `json:"value"`
	NextLink string  `json:"nextLink"`
}

// Alert is one Azure Monitor alert instance.
type Alert struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Properties AlertProperties `json:"properties"`
}

// AlertProperties wraps the essentials blob of an alert.
type AlertProperties struct {
	Essentials AlertEssentials `json:"essentials"`
}

// AlertEssentials carries the core fields of an alert.
type AlertEssentials struct {
	Severity             string `json:"severity"`
	SignalType           string `json:"signalType"`
	AlertState           string `json:"alertState"`
	MonitorCondition     string `json:"monitorCondition"`
	MonitorService       string `json:"monitorService"`
	TargetResource       string `json:"targetResource"`
	TargetResourceName   string `json:"targetResourceName"`
	TargetResourceGroup  string `json:"targetResourceGroup"`
	Description          string `json:"description"`
	StartDateTime        string `json:"startDateTime"`
	LastModifiedDateTime string `json:"lastModifiedDateTime"`
}

// ErrorResponse is the standard ARM error payload.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail is the code/message pair inside an ARM error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
