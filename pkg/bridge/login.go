// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"regexp"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// TwoFactorMode is a remote verification method.
type TwoFactorMode int

const (
	TwoFactorTOTP TwoFactorMode = iota
	TwoFactorSMS
)

// TwoFactorInfo describes the verification options offered by the remote
// platform after a two-factor-required login error.
type TwoFactorInfo struct {
	TOTPEnabled bool
	SMSEnabled  bool
	Identifier  string
	Username    string
}

// codePattern matches the 1-6 digit verification codes accepted by the
// interactive prompts.
var codePattern = regexp.MustCompile(`^[0-9]{1,6}$`)

// LoginFlow drives credential login through the optional two-factor and
// checkpoint branches, prompting the operator on the control channel. It
// runs once at startup and gates the relay's activation.
type LoginFlow struct {
	remote         RemoteClient
	local          LocalClient
	controlChannel string
	cfg            *Config
	log            zerolog.Logger
}

// NewLoginFlow creates a flow bound to the control channel.
func NewLoginFlow(remote RemoteClient, local LocalClient, controlChannel string, cfg *Config, log zerolog.Logger) *LoginFlow {
	return &LoginFlow{
		remote:         remote,
		local:          local,
		controlChannel: controlChannel,
		cfg:            cfg,
		log:            log.With().Str("component", "login_flow").Logger(),
	}
}

// Run attempts the login and resolves any interactive branch. A nil return
// means the session is authenticated. Unrecognized errors are surfaced to
// the control channel and returned wrapped in ErrLoginFailed.
func (f *LoginFlow) Run(ctx context.Context) error {
	err := f.remote.Login(ctx, f.cfg.RemoteUsername, f.cfg.RemotePassword)
	if err == nil {
		f.log.Info().Msg("Logged in with stored credentials")
		return nil
	}

	var twoFactor *TwoFactorRequiredError
	var checkpoint *CheckpointRequiredError
	switch {
	case errors.As(err, &twoFactor):
		err = f.resolveTwoFactor(ctx, twoFactor.Info)
	case errors.As(err, &checkpoint):
		err = f.resolveCheckpoint(ctx)
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNoTwoFactor) || errors.Is(err, ErrPromptTimeout) {
		return err
	}

	f.log.Error().Err(err).Msg("Login failed")
	if _, sendErr := f.local.SendEmbed(ctx, f.controlChannel, errorEmbed("Login Error", err)); sendErr != nil {
		f.log.Warn().Err(sendErr).Msg("Failed to report login error to control channel")
	}
	return errors.Wrapf(ErrLoginFailed, "%v", err)
}

// resolveTwoFactor picks a verification mode, prompts for the code and
// submits it.
func (f *LoginFlow) resolveTwoFactor(ctx context.Context, info TwoFactorInfo) error {
	var mode TwoFactorMode
	switch {
	case !info.TOTPEnabled && !info.SMSEnabled:
		return errors.Wrap(ErrNoTwoFactor, "account offers no verification mode")
	case info.TOTPEnabled && info.SMSEnabled:
		choice, err := multipleChoice(ctx, f.local, f.controlChannel,
			"Two Factor Authentication",
			"Select the two factor method you want to use.",
			[]choiceOption{
				{Emoji: "\U0001f512", ID: int(TwoFactorTOTP), Description: "TOTP (Authentication App like Google Authenticator)"},
				{Emoji: "\U0001f4f1", ID: int(TwoFactorSMS), Description: "SMS"},
			},
			f.cfg.ChoiceTimeout,
		)
		if err != nil {
			return err
		}
		mode = TwoFactorMode(choice)
	case info.TOTPEnabled:
		mode = TwoFactorTOTP
	default:
		mode = TwoFactorSMS
	}

	f.log.Info().Int("mode", int(mode)).Msg("Awaiting two factor code")
	code, err := textInput(ctx, f.local, textInputOptions{
		ChannelID: f.controlChannel,
		Title:     "Two Factor Authentication",
		Message:   "Type your code like this: .2fa <code>",
		Prefix:    ".2fa ",
		Validate:  codePattern.MatchString,
		Timeout:   f.cfg.PromptTimeout,
	})
	if err != nil {
		return err
	}
	return f.remote.SubmitTwoFactorCode(ctx, info, mode, code)
}

// resolveCheckpoint triggers automatic challenge resolution, then prompts
// for the delivered security code and submits it.
func (f *LoginFlow) resolveCheckpoint(ctx context.Context) error {
	if err := f.remote.TriggerChallenge(ctx); err != nil {
		return errors.Wrap(err, "failed to trigger challenge resolution")
	}
	code, err := textInput(ctx, f.local, textInputOptions{
		ChannelID: f.controlChannel,
		Title:     "Security Checkpoint",
		Message:   "Type your code like this: .code <code>",
		Prefix:    ".code ",
		Validate:  codePattern.MatchString,
		Timeout:   f.cfg.PromptTimeout,
	})
	if err != nil {
		return err
	}
	return f.remote.SubmitChallengeCode(ctx, code)
}
