package repository

import "errors"

var ErrUserInactive = errors.New("user account is deactivated")
