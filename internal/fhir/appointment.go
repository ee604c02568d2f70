// Package fhir reads the FHIR R5 resources that seed assessment instances.
//
// Only the Appointment fields the gateway needs are decoded: the subject
// (the patient) and the participant typed ATND (the attending practitioner).
package fhir

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"neuroassess/common/logger"
	"neuroassess/common/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// MIMEFhirJSON is the FHIR JSON media type.
const MIMEFhirJSON = "application/fhir+json"

// ParticipationAttender is the V3 ParticipationType code of the attending practitioner.
const ParticipationAttender = "ATND"

var (
	// ErrInvalidURL is returned for a URL that is not an absolute http(s)
	// URL of an Appointment resource.
	ErrInvalidURL = errors.New("invalid appointment url")
	// ErrUnavailable is returned when the FHIR server cannot be read.
	ErrUnavailable = errors.New("fhir server unavailable")
)

// Reference is a FHIR Reference.
type Reference struct {
	Reference string `json:"reference,omitempty"`
	Display   string `json:"display,omitempty"`
}

// Coding is a FHIR Coding.
type Coding struct {
	System string `json:"system,omitempty"`
	Code   string `json:"code,omitempty"`
}

// CodeableConcept is a FHIR CodeableConcept.
type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
}

// Participant is an Appointment.participant entry.
type Participant struct {
	Type  []CodeableConcept `json:"type,omitempty"`
	Actor *Reference        `json:"actor,omitempty"`
}

// Appointment is the subset of the FHIR R5 Appointment resource read here.
type Appointment struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id"`
	Subject      *Reference    `json:"subject,omitempty"`
	Participant  []Participant `json:"participant,omitempty"`
}

// Practitioner returns the actor reference of the first ATND participant.
// Only the first coding of the first type is inspected.
func (a *Appointment) Practitioner() string {
	for _, p := range a.Participant {
		if p.Actor == nil || len(p.Type) == 0 || len(p.Type[0].Coding) == 0 {
			continue
		}
		if p.Type[0].Coding[0].Code == ParticipationAttender {
			return p.Actor.Reference
		}
	}
	return ""
}

// Patient returns the subject reference.
func (a *Appointment) Patient() string {
	if a.Subject == nil {
		return ""
	}
	return a.Subject.Reference
}

// ResourceURL splits an Appointment URL into the server base and the
// appointment id, e.g. https://hapi.fhir.org/baseR5/Appointment/773551 gives
// https://hapi.fhir.org/baseR5/ and 773551. A trailing _history/{vid} is dropped.
func ResourceURL(raw string) (base, id string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", "", fmt.Errorf("%w: %q is not an absolute http url", ErrInvalidURL, raw)
	}

	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, s := range segs {
		if s != "Appointment" {
			continue
		}
		if i+1 >= len(segs) || segs[i+1] == "" {
			break
		}
		prefix := strings.Join(segs[:i], "/")
		if prefix != "" {
			prefix += "/"
		}
		return u.Scheme + "://" + u.Host + "/" + prefix, segs[i+1], nil
	}
	return "", "", fmt.Errorf("%w: %q does not name an Appointment", ErrInvalidURL, raw)
}

// Client reads Appointment resources over HTTP.
type Client struct {
	client  *fiber.Client
	timeout time.Duration
	log     *zap.Logger
}

// NewClient creates a client bounding every read by timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		client:  fiber.AcquireClient(),
		timeout: timeout,
		log:     logger.Named("fhir"),
	}
}

// Appointment reads the resource at appointmentURL.
func (c *Client) Appointment(ctx context.Context, appointmentURL string) (*Appointment, error) {
	base, id, err := ResourceURL(appointmentURL)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	agent := c.client.Get(base + "Appointment/" + url.PathEscape(id))
	agent.Timeout(timeout)
	agent.Set(fiber.HeaderAccept, MIMEFhirJSON)
	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, errs[0])
	}
	if code < 200 || code >= 300 {
		return nil, fmt.Errorf("%w: read Appointment/%s: status %d", ErrUnavailable, id, code)
	}

	var a Appointment
	if err := utils.Unmarshal(body, &a); err != nil {
		return nil, fmt.Errorf("%w: decode Appointment/%s: %w", ErrUnavailable, id, err)
	}
	if a.ResourceType != "Appointment" {
		return nil, fmt.Errorf("%w: Appointment/%s returned resource type %q", ErrUnavailable, id, a.ResourceType)
	}
	c.log.Info("appointment read",
		zap.String("id", a.ID),
		zap.String("practitioner", a.Practitioner()),
		zap.String("patient", a.Patient()),
	)
	return &a, nil
}
