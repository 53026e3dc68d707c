package cmd

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/disputekit/disputekit/internal/core"
)

// ExitWithCode logs err with foundry exit code metadata and exits.
// logger may be nil before logging is initialized.
func ExitWithCode(logger *logging.Logger, exitCode foundry.ExitCode, msg string, err error) {
	if logger == nil {
		ExitWithCodeStderr(exitCode, msg, err)
		return
	}

	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		logger.Error(msg, zap.Int("exit_code", int(exitCode)), zap.Error(err))
		os.Exit(int(exitCode))
	}

	fields := []zap.Field{
		zap.Int("exit_code", info.Code),
		zap.String("exit_name", info.Name),
		zap.String("exit_category", info.Category),
	}
	fields = append(fields, envelopeFields(err)...)
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	logger.Error(msg, fields...)
	os.Exit(info.Code)
}

// ExitWithCodeStderr writes to stderr and exits. Used for failures before
// the logger exists.
func ExitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	switch {
	case err == nil:
		fmt.Fprintf(os.Stderr, "FATAL: %s\n", msg)
	default:
		var envelope *errors.ErrorEnvelope
		if stderrors.As(err, &envelope) {
			fmt.Fprintf(os.Stderr, "FATAL: %s [%s]: %s (correlation: %s)\n",
				msg, envelope.Code, envelope.Message, envelope.CorrelationID)
		} else {
			fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
		}
	}

	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		os.Exit(int(exitCode))
	}
	fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
	os.Exit(info.Code)
}

// ExitCodeFor maps a command error onto a foundry exit code.
func ExitCodeFor(err error) foundry.ExitCode {
	switch core.ErrorCode(err) {
	case core.CodeNotFound:
		return foundry.ExitFileNotFound
	case core.CodeTransientUnavailable:
		return foundry.ExitExternalServiceUnavailable
	default:
		return foundry.ExitFailure
	}
}

func envelopeFields(err error) []zap.Field {
	var envelope *errors.ErrorEnvelope
	if !stderrors.As(err, &envelope) {
		return nil
	}
	fields := []zap.Field{
		zap.String("error_code", envelope.Code),
		zap.String("correlation_id", envelope.CorrelationID),
	}
	if envelope.Context != nil {
		fields = append(fields, zap.Any("error_context", envelope.Context))
	}
	return fields
}
