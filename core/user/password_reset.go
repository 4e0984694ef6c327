package user

import (
	"context"
	"net/mail"
	"net/url"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
)

var invalidResetTokenText = "the reset link is invalid or has expired"

type (
	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	// ResetPassword confirms a reset with the uid and token of the emailed link.
	ResetPassword struct {
		UID             string `json:"uid" validate:"required"`
		Token           string `json:"token" validate:"required"`
		Password        string `json:"password" validate:"required"`
		PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	}

	PasswordResetInterface interface {
		// Request emails a reset link to the active user owning email; ErrNotFound otherwise.
		Request(ctx context.Context, email string) error
		Confirm(ctx context.Context, rp ResetPassword) error
	}

	PasswordReset struct {
		users    ServiceInterface
		tokens   *TokenGenerator
		mailSvc  core.EmailService
		resetURL string
	}
)

var _ PasswordResetInterface = (*PasswordReset)(nil)

func NewPasswordReset(users ServiceInterface, mailSvc core.EmailService, conf *core.Config) *PasswordReset {
	return &PasswordReset{
		users:    users,
		tokens:   NewTokenGenerator(conf.SecretKey, conf.PasswordResetTimeoutDelta),
		mailSvc:  mailSvc,
		resetURL: conf.FrontendBaseURL + "/password-reset",
	}
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}

func (rp *ResetPassword) Validate(validate *validator.Validate) error {
	rp.UID = core.CleanString(rp.UID)
	rp.Token = core.CleanString(rp.Token)
	return validate.Struct(rp)
}

func (pr *PasswordReset) Request(ctx context.Context, email string) error {
	email = core.CleanString(email, true /* lower */)
	usr, err := pr.users.GetByUsernameOrEmail(ctx, email)
	if err != nil {
		return err
	}
	if usr.Email != email || !usr.IsActive {
		return ErrNotFound
	}

	link := pr.resetURL + "?" + url.Values{
		"uid":   {EncodeUID(usr)},
		"token": {pr.tokens.MakeToken(usr)},
	}.Encode()
	pr.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: usr.DisplayName(), Address: usr.Email}},
		Subject: "Password reset",
		BodyStr: "You asked to reset your password. Follow the link below to choose a new one.\n" +
			"If you did not ask for it, you can ignore this email.",
		Link: link,
	})
	return nil
}

// Confirm sets the new password when the uid and token are valid.
func (pr *PasswordReset) Confirm(ctx context.Context, rp ResetPassword) error {
	invalid := func(err error) error {
		return core.NewValidationError(err, core.FieldError{Field: "token", Error: invalidResetTokenText})
	}

	id, err := decodeUID(rp.UID)
	if err != nil {
		return invalid(errInvalidToken)
	}
	usr, err := pr.users.GetByID(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return invalid(errInvalidToken)
		}
		return errors.Wrap(err, "finding user by ID")
	}
	if !usr.IsActive {
		return invalid(errInvalidToken)
	}
	if err := pr.tokens.verifyToken(usr, rp.Token); err != nil {
		return invalid(err)
	}

	if tag := passwordPolicyViolation(rp.Password, usr.FullName, usr.Username, usr.Email); tag != "" {
		return core.NewValidationError(nil, core.FieldError{Field: "password", Error: pwdPolicyTexts[tag]})
	}
	if _, err := pr.users.SetPassword(ctx, usr, rp.Password); err != nil {
		return errors.Wrap(err, "setting password")
	}
	return nil
}
