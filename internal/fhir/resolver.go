package fhir

import (
	"context"
	"fmt"
)

// Default instance variable names.
const (
	VarAppointmentURL = "appointmentUrl"
	VarPatient        = "patient"
	VarPractitioner   = "practitioner"
)

// AppointmentReader reads an Appointment by URL. *Client implements it.
type AppointmentReader interface {
	Appointment(ctx context.Context, appointmentURL string) (*Appointment, error)
}

// AppointmentResolver fills the patient and practitioner variables of a
// starting instance from the Appointment named by its appointment URL variable.
// It implements engine.StartResolver.
type AppointmentResolver struct {
	Reader AppointmentReader
	// URLVariable names the variable carrying the Appointment URL.
	URLVariable string
}

// ResolveStart returns patient and practitioner references. Instances started
// without an appointment URL are left alone. References are passed through
// as read, e.g. "Patient/42".
func (r AppointmentResolver) ResolveStart(ctx context.Context, processID string, vars map[string]any) (map[string]any, error) {
	name := r.URLVariable
	if name == "" {
		name = VarAppointmentURL
	}
	raw, ok := vars[name]
	if !ok || raw == nil {
		return nil, nil
	}
	appointmentURL, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidURL, name, raw)
	}
	if appointmentURL == "" {
		return nil, nil
	}

	a, err := r.Reader.Appointment(ctx, appointmentURL)
	if err != nil {
		return nil, fmt.Errorf("process %s: %w", processID, err)
	}

	out := make(map[string]any, 2)
	if v := a.Patient(); v != "" {
		out[VarPatient] = v
	}
	if v := a.Practitioner(); v != "" {
		out[VarPractitioner] = v
	}
	return out, nil
}
