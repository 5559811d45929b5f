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

// UserService manages customer and admin profiles. Listing, creating and
// deleting are admin operations and are gated by the router; reads and
// updates of a single profile are checked against the caller here.
type UserService interface {
	Create(ctx context.Context, req *model.UserCreate) (*model.User, error)
	GetByID(ctx context.Context, actor model.Identity, id string) (*model.User, error)
	GetAll(ctx context.Context, limit int, offset int64) ([]*model.User, int64, error)
	Update(ctx context.Context, actor model.Identity, id string, update *model.UserUpdate) (*model.User, error)
	Delete(ctx context.Context, id string) error
}

type userService struct {
	ledger    *repository.Ledger
	validator *validator.Validator
	cfg       *config.Config
	log       *logger.Logger
}

func NewUserService(ledger *repository.Ledger, v *validator.Validator, cfg *config.Config) UserService {
	return &userService{
		ledger:    ledger,
		validator: v,
		cfg:       cfg,
		log:       cfg.Log.Component("users"),
	}
}

func (s *userService) Create(ctx context.Context, req *model.UserCreate) (*model.User, error) {
	req.Name = sanitizer.NormalizeName(req.Name)
	req.Email = sanitizer.NormalizeEmail(req.Email)
	req.Phone = sanitizer.NormalizePhone(req.Phone)
	if err := s.validator.ValidateUserCreate(req); err != nil {
		s.log.Warn("User validation failed", "error", err)
		return nil, invalidRequest("Invalid user", err)
	}

	user := &model.User{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
		Role:  model.Role(req.Role),
	}
	if err := s.ledger.Users.Create(ctx, user); err != nil {
		return nil, s.translate(err, "")
	}

	s.log.Info("User created", "id", user.ID, "role", user.Role)
	return user, nil
}

func (s *userService) GetByID(ctx context.Context, actor model.Identity, id string) (*model.User, error) {
	if !actor.IsAdmin() && actor.UserID != id {
		return nil, apperrors.Forbidden("You can only view your own profile")
	}

	user, err := s.ledger.Users.FindByID(ctx, id)
	if err != nil {
		return nil, s.translate(err, id)
	}
	return user, nil
}

func (s *userService) GetAll(ctx context.Context, limit int, offset int64) ([]*model.User, int64, error) {
	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	var count int64
	var users []*model.User
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.ledger.Users.Count(ctx)
	}()

	go func() {
		defer wg.Done()
		users, errFind = s.ledger.Users.FindAll(ctx, limit, offset)
	}()

	wg.Wait()
	if err := errors.Join(errCount, errFind); err != nil {
		s.log.Error("Failed to list users", "error", err)
		return nil, 0, apperrors.StorageFault("Failed to retrieve users", err)
	}
	return users, count, nil
}

// Update applies a partial profile update. Customers may only edit their
// own profile and may not change their role.
func (s *userService) Update(ctx context.Context, actor model.Identity, id string, update *model.UserUpdate) (*model.User, error) {
	if !actor.IsAdmin() {
		if actor.UserID != id {
			return nil, apperrors.Forbidden("You can only update your own profile")
		}
		if update.Role != nil {
			return nil, apperrors.Forbidden("Only admins can change roles")
		}
	}

	sanitizer.NormalizeOptional(update.Name, sanitizer.NormalizeName)
	sanitizer.NormalizeOptional(update.Email, sanitizer.NormalizeEmail)
	sanitizer.NormalizeOptional(update.Phone, sanitizer.NormalizePhone)
	if err := s.validator.ValidateUserUpdate(update); err != nil {
		s.log.Warn("User update validation failed", "id", id, "error", err)
		return nil, invalidRequest("Invalid user update", err)
	}

	if err := s.ledger.Users.Update(ctx, id, update); err != nil {
		return nil, s.translate(err, id)
	}

	s.log.Info("User updated", "id", id, "by", actor.UserID)
	user, err := s.ledger.Users.FindByID(ctx, id)
	if err != nil {
		return nil, s.translate(err, id)
	}
	return user, nil
}

// Delete refuses while the user holds active bookings. The user document is
// claimed first inside the transaction; admissions claim the same document,
// so a booking cannot be admitted between the count and the delete.
func (s *userService) Delete(ctx context.Context, id string) error {
	err := s.ledger.Bookings.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		if err := s.ledger.Users.Touch(txCtx, id); err != nil {
			return err
		}

		active, err := s.ledger.Bookings.CountActiveByCustomer(txCtx, id)
		if err != nil {
			return err
		}
		if active > 0 {
			return apperrors.InvalidState("Cannot delete user with active bookings").WithDetails(map[string]any{
				"active_bookings": active,
			})
		}

		return s.ledger.Users.Delete(txCtx, id)
	})
	if err != nil {
		return s.translate(err, id)
	}

	s.log.Info("User deleted", "id", id)
	return nil
}

func (s *userService) translate(err error, id string) error {
	switch {
	case apperrors.IsAppError(err):
		return err
	case errors.Is(err, bookingserrors.ErrInvalidID):
		return apperrors.InvalidInput("Invalid User ID")
	case errors.Is(err, bookingserrors.ErrUserNotFound):
		return apperrors.NotFoundWithID("User", id)
	case errors.Is(err, bookingserrors.ErrDuplicateEmail):
		return apperrors.Conflict("Email already exists")
	default:
		s.log.Error("User storage error", "id", id, "error", err)
		return apperrors.StorageFault("Failed to access User", err)
	}
}

func invalidRequest(message string, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return apperrors.InvalidInput(message).WithDetails(verrs.Details())
	}
	return apperrors.InvalidInput(message)
}
