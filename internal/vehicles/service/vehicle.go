package service

import (
	"context"
	"errors"
	bookingserrors "fleetrent/internal/bookings/errors"
	"fleetrent/internal/bookings/repository"
	"fleetrent/internal/bookings/validator"
	"fleetrent/pkg/config"
	apperrors "fleetrent/pkg/errors"
	"fleetrent/pkg/logger"
	"fleetrent/pkg/model"
	"fleetrent/pkg/sanitizer"
	"sync"
)

// VehicleService manages the fleet. Availability is never set here: it is
// derived from bookings by the booking engine.
type VehicleService interface {
	Create(ctx context.Context, req *model.VehicleCreate) (*model.Vehicle, error)
	GetByID(ctx context.Context, id string) (*model.Vehicle, error)
	GetAll(ctx context.Context, limit int, offset int64) ([]*model.Vehicle, int64, error)
	Update(ctx context.Context, id string, update *model.VehicleUpdate) (*model.Vehicle, error)
	Delete(ctx context.Context, id string) error
}

type vehicleService struct {
	ledger    *repository.Ledger
	validator *validator.Validator
	cfg       *config.Config
	log       *logger.Logger
}

func NewVehicleService(ledger *repository.Ledger, v *validator.Validator, cfg *config.Config) VehicleService {
	return &vehicleService{
		ledger:    ledger,
		validator: v,
		cfg:       cfg,
		log:       cfg.Log.Component("vehicles"),
	}
}

func (s *vehicleService) Create(ctx context.Context, req *model.VehicleCreate) (*model.Vehicle, error) {
	req.Name = sanitizer.NormalizeName(req.Name)
	req.RegistrationNumber = sanitizer.NormalizeRegistration(req.RegistrationNumber)
	if err := s.validator.ValidateVehicleCreate(req); err != nil {
		s.log.Warn("Vehicle validation failed", "error", err)
		return nil, invalidRequest("Invalid vehicle", err)
	}

	vehicle := &model.Vehicle{
		Name:               req.Name,
		Type:               model.VehicleType(req.Type),
		RegistrationNumber: req.RegistrationNumber,
		DailyRentPrice:     req.DailyRentPrice,
		AvailabilityStatus: model.Available,
	}
	if err := s.ledger.Vehicles.Create(ctx, vehicle); err != nil {
		return nil, s.translate(err, "")
	}

	s.log.Info("Vehicle created", "id", vehicle.ID, "registration_number", vehicle.RegistrationNumber)
	return vehicle, nil
}

func (s *vehicleService) GetByID(ctx context.Context, id string) (*model.Vehicle, error) {
	vehicle, err := s.ledger.Vehicles.FindByID(ctx, id)
	if err != nil {
		return nil, s.translate(err, id)
	}
	return vehicle, nil
}

func (s *vehicleService) GetAll(ctx context.Context, limit int, offset int64) ([]*model.Vehicle, int64, error) {
	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	var count int64
	var vehicles []*model.Vehicle
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.ledger.Vehicles.Count(ctx)
	}()

	go func() {
		defer wg.Done()
		vehicles, errFind = s.ledger.Vehicles.FindAll(ctx, limit, offset)
	}()

	wg.Wait()
	if err := errors.Join(errCount, errFind); err != nil {
		s.log.Error("Failed to list vehicles", "error", err)
		return nil, 0, apperrors.StorageFault("Failed to retrieve vehicles", err)
	}
	return vehicles, count, nil
}

func (s *vehicleService) Update(ctx context.Context, id string, update *model.VehicleUpdate) (*model.Vehicle, error) {
	sanitizer.NormalizeOptional(update.Name, sanitizer.NormalizeName)
	sanitizer.NormalizeOptional(update.RegistrationNumber, sanitizer.NormalizeRegistration)
	if err := s.validator.ValidateVehicleUpdate(update); err != nil {
		s.log.Warn("Vehicle update validation failed", "id", id, "error", err)
		return nil, invalidRequest("Invalid vehicle update", err)
	}

	if err := s.ledger.Vehicles.Update(ctx, id, update); err != nil {
		return nil, s.translate(err, id)
	}

	s.log.Info("Vehicle updated", "id", id)
	return s.GetByID(ctx, id)
}

// Delete refuses while the vehicle has active bookings. The check and the
// delete share a transaction that claims the vehicle document, so a
// concurrent admission cannot slip in between.
func (s *vehicleService) Delete(ctx context.Context, id string) error {
	err := s.ledger.Bookings.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		if err := s.ledger.Vehicles.Touch(txCtx, id); err != nil {
			return err
		}

		active, err := s.ledger.Bookings.CountActiveByVehicle(txCtx, id)
		if err != nil {
			return err
		}
		if active > 0 {
			return apperrors.InvalidState("Cannot delete vehicle with active bookings").WithDetails(map[string]any{
				"active_bookings": active,
			})
		}

		return s.ledger.Vehicles.Delete(txCtx, id)
	})
	if err != nil {
		return s.translate(err, id)
	}

	s.log.Info("Vehicle deleted", "id", id)
	return nil
}

func (s *vehicleService) translate(err error, id string) error {
	switch {
	case apperrors.IsAppError(err):
		return err
	case errors.Is(err, bookingserrors.ErrInvalidID):
		return apperrors.InvalidInput("Invalid Vehicle ID")
	case errors.Is(err, bookingserrors.ErrVehicleNotFound):
		return apperrors.NotFoundWithID("Vehicle", id)
	case errors.Is(err, bookingserrors.ErrDuplicateRegistration):
		return apperrors.Conflict("Registration number already exists")
	default:
		s.log.Error("Vehicle storage error", "id", id, "error", err)
		return apperrors.StorageFault("Failed to access Vehicle", err)
	}
}

func invalidRequest(message string, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return apperrors.InvalidInput(message).WithDetails(verrs.Details())
	}
	return apperrors.InvalidInput(message)
}
