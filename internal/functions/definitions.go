package functions

// Definition describes a tool to the conversation model.
type Definition struct {
	Name        Name
	Description string
	Parameters  map[string]any
}

// Definitions lists every tool the model is allowed to call.
func Definitions() []Definition {
	return []Definition{
		{
			Name:        NameScheduleCallback,
			Description: "Schedule a callback when the person asks to be called later. Use the delay in minutes from now.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"minutes_delay": map[string]any{
						"type":        "integer",
						"minimum":     0,
						"description": "Minutes from now until the callback.",
					},
				},
				"required": []string{"minutes_delay"},
			},
		},
		{
			Name:        NameEndCall,
			Description: "End the call once the conversation is finished or the person wants to hang up.",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		},
		{
			Name:        NameLookupContact,
			Description: "Look up the name and email on file for the person on the call.",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		},
	}
}
