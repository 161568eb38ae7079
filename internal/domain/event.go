package domain

import (
	"time"

	"github.com/diagnosis/campus-tickets/internal/utils"
)

const DefaultEventImage = "/static/images/default.png"

type Event struct {
	ID          string    `json:"id"`
	Name        string    `json:"event_name"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Date        string    `json:"date"`
	StartTime   string    `json:"start_time"`
	EndTime     string    `json:"end_time"`
	Price       int64     `json:"price"`
	ImageURL    string    `json:"image_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EventDTO adds the rendered description for dashboard pages.
type EventDTO struct {
	Event
	DescriptionHTML string `json:"description_html"`
}

type EventRequest struct {
	Name        string `json:"event_name"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Date        string `json:"date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Price       int64  `json:"price"`
	ImageURL    string `json:"image_url"`
}

func (r *EventRequest) Normalize() {
	r.Name = utils.NormalizeString(r.Name)
	r.Location = utils.NormalizeString(r.Location)
	r.Date = utils.NormalizeString(r.Date)
	r.StartTime = utils.NormalizeString(r.StartTime)
	r.EndTime = utils.NormalizeString(r.EndTime)
	if utils.NormalizeString(r.ImageURL) == "" {
		r.ImageURL = DefaultEventImage
	}
}

func (r *EventRequest) Validate() error {
	if r.Name == "" {
		return Validation("event_name is required")
	}
	if r.Location == "" {
		return Validation("location is required")
	}
	if _, err := time.Parse("2006-01-02", r.Date); err != nil {
		return Validation("date must be YYYY-MM-DD")
	}
	start, err := time.Parse("15:04", r.StartTime)
	if err != nil {
		return Validation("start_time must be HH:MM")
	}
	end, err := time.Parse("15:04", r.EndTime)
	if err != nil {
		return Validation("end_time must be HH:MM")
	}
	if !end.After(start) {
		return Validation("end_time must be after start_time")
	}
	if r.Price < 0 {
		return Validation("price cannot be negative")
	}
	return nil
}

// EventPatch holds optional updates; nil fields are left unchanged.
type EventPatch struct {
	Name        *string `json:"event_name,omitempty"`
	Description *string `json:"description,omitempty"`
	Location    *string `json:"location,omitempty"`
	Date        *string `json:"date,omitempty"`
	StartTime   *string `json:"start_time,omitempty"`
	EndTime     *string `json:"end_time,omitempty"`
	Price       *int64  `json:"price,omitempty"`
	ImageURL    *string `json:"image_url,omitempty"`
}

func (p *EventPatch) Validate() error {
	if p.Name != nil && utils.NormalizeString(*p.Name) == "" {
		return Validation("event_name cannot be empty")
	}
	if p.Date != nil {
		if _, err := time.Parse("2006-01-02", *p.Date); err != nil {
			return Validation("date must be YYYY-MM-DD")
		}
	}
	if p.StartTime != nil {
		if _, err := time.Parse("15:04", *p.StartTime); err != nil {
			return Validation("start_time must be HH:MM")
		}
	}
	if p.EndTime != nil {
		if _, err := time.Parse("15:04", *p.EndTime); err != nil {
			return Validation("end_time must be HH:MM")
		}
	}
	if p.Price != nil && *p.Price < 0 {
		return Validation("price cannot be negative")
	}
	return nil
}
