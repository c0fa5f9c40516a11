package validations

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	pkgError "github.com/propertydesk/groupqueue/pkg/error"
	"github.com/propertydesk/groupqueue/queue/domain"
)

func notBlank(value any) error {
	s, _ := value.(string)
	if strings.TrimSpace(s) == "" {
		return validation.NewError("validation_blank", "cannot be blank")
	}
	return nil
}

func isoTimestamp(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := time.Parse(time.RFC3339, s); err != nil {
		return validation.NewError("validation_iso", "must be a valid ISO timestamp")
	}
	return nil
}

func ValidateIntake(ctx context.Context, request domain.IntakeRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Content, validation.Required, validation.By(notBlank)),
		validation.Field(&request.RepeatCount, validation.Min(0)),
		validation.Field(&request.FirstPostAtIso, validation.By(isoTimestamp)),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateDispatch(ctx context.Context, request domain.DispatchRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Limit, validation.Min(0)),
		validation.Field(&request.NowIso, validation.By(isoTimestamp)),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateRequeue(ctx context.Context, request domain.RequeueRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.NextPostAtIso, validation.By(isoTimestamp)),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}
