package service

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/diagnosis/campus-tickets/internal/artifact"
	"github.com/diagnosis/campus-tickets/internal/domain"
	"github.com/diagnosis/campus-tickets/internal/repo/postgres"
	"github.com/diagnosis/campus-tickets/pkg/events"
	"github.com/diagnosis/campus-tickets/pkg/logger"
	"github.com/google/uuid"
)

// Renderer turns an event description into safe HTML.
type Renderer interface {
	HTML(src string) string
}

var imageTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

type EventService interface {
	List(ctx context.Context) ([]domain.EventDTO, error)
	Get(ctx context.Context, id string) (*domain.EventDTO, error)
	Create(ctx context.Context, req *domain.EventRequest) (*domain.Event, error)
	Update(ctx context.Context, id string, patch *domain.EventPatch) (*domain.Event, error)
	Delete(ctx context.Context, id string) error
	// UploadImage stores an event image and returns its URL. Only PNG,
	// JPEG, GIF and WebP content is accepted.
	UploadImage(ctx context.Context, filename string, data []byte) (string, error)
}

type eventService struct {
	events   postgres.EventsRepo
	store    artifact.Store
	renderer Renderer
	eventBus events.Publisher
	newID    func() string
}

func NewEventService(
	eventsRepo postgres.EventsRepo,
	store artifact.Store,
	renderer Renderer,
	eventBus events.Publisher,
) EventService {
	return &eventService{
		events:   eventsRepo,
		store:    store,
		renderer: renderer,
		eventBus: eventBus,
		newID:    uuid.NewString,
	}
}

func (s *eventService) toDTO(e domain.Event) domain.EventDTO {
	return domain.EventDTO{Event: e, DescriptionHTML: s.renderer.HTML(e.Description)}
}

func (s *eventService) List(ctx context.Context) ([]domain.EventDTO, error) {
	es, err := s.events.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	out := make([]domain.EventDTO, 0, len(es))
	for _, e := range es {
		out = append(out, s.toDTO(e))
	}
	return out, nil
}

func (s *eventService) get(ctx context.Context, id string) (*domain.Event, error) {
	e, err := s.events.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	if e == nil {
		return nil, domain.NotFound("event not found")
	}
	return e, nil
}

func (s *eventService) Get(ctx context.Context, id string) (*domain.EventDTO, error) {
	e, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := s.toDTO(*e)
	return &dto, nil
}

func (s *eventService) Create(ctx context.Context, req *domain.EventRequest) (*domain.Event, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	e := &domain.Event{
		ID:          s.newID(),
		Name:        req.Name,
		Description: req.Description,
		Location:    req.Location,
		Date:        req.Date,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Price:       req.Price,
		ImageURL:    req.ImageURL,
	}
	if err := s.events.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	publish(ctx, s.eventBus, events.EventCreated, events.EventChangedEvent{EventID: e.ID, Name: e.Name})
	return e, nil
}

func (s *eventService) Update(ctx context.Context, id string, patch *domain.EventPatch) (*domain.Event, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	e, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	// Re-validate the merged event so a patch cannot break start < end.
	req := domain.EventRequest{
		Name:        pick(patch.Name, e.Name),
		Description: pick(patch.Description, e.Description),
		Location:    pick(patch.Location, e.Location),
		Date:        pick(patch.Date, e.Date),
		StartTime:   pick(patch.StartTime, e.StartTime),
		EndTime:     pick(patch.EndTime, e.EndTime),
		Price:       e.Price,
		ImageURL:    pick(patch.ImageURL, e.ImageURL),
	}
	if patch.Price != nil {
		req.Price = *patch.Price
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	e.Name, e.Description, e.Location = req.Name, req.Description, req.Location
	e.Date, e.StartTime, e.EndTime = req.Date, req.StartTime, req.EndTime
	e.Price, e.ImageURL = req.Price, req.ImageURL
	if err := s.events.Update(ctx, e); err != nil {
		return nil, err
	}

	publish(ctx, s.eventBus, events.EventUpdated, events.EventChangedEvent{EventID: e.ID, Name: e.Name})
	return e, nil
}

func (s *eventService) Delete(ctx context.Context, id string) error {
	ok, err := s.events.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if !ok {
		return domain.NotFound("event not found")
	}
	publish(ctx, s.eventBus, events.EventDeleted, events.EventChangedEvent{EventID: id})
	return nil
}

func (s *eventService) UploadImage(ctx context.Context, filename string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", domain.Validation("No image uploaded")
	}
	ct := http.DetectContentType(data)
	ext, ok := imageTypes[ct]
	if !ok {
		return "", domain.Validation("unsupported image type")
	}
	if e := strings.ToLower(path.Ext(filename)); e == ".jpeg" && ext == ".jpg" {
		ext = e
	}

	name := "events/" + s.newID() + ext
	if err := s.store.Put(ctx, name, data, ct); err != nil {
		return "", domain.E(domain.KindInternal, "could not store image", err)
	}
	url := s.store.URL(name)
	logger.InfoContext(ctx, "Event image uploaded", "name", name, "size", len(data))
	return url, nil
}

func pick(v *string, fallback string) string {
	if v != nil {
		return *v
	}
	return fallback
}
