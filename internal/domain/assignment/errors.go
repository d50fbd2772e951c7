package assignment

import (
	"fmt"

	"github.com/Strob0t/leadgate/internal/domain"
)

var errUserRequired = fmt.Errorf("user_id is required: %w", domain.ErrValidation)
