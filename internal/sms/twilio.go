package sms

import (
	"context"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Twilio error codes worth calling out in logs.
const (
	codeInvalidNumber     = 21211
	codeCountryNotEnabled = 21408
	codeUnverifiedNumber  = 21608
	codeUnreachableNumber = 21612
)

// messageCreator is the slice of the Twilio REST API the gateway uses.
type messageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// TwilioGateway sends SMS through the Twilio Messages API.
type TwilioGateway struct {
	messages messageCreator
	from     string
}

func NewTwilioGateway(accountSID, authToken, from string) *TwilioGateway {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioGateway{messages: client.Api, from: from}
}

func (g *TwilioGateway) Send(ctx context.Context, to, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(g.from)
	params.SetBody(body)

	if _, err := g.messages.CreateMessage(params); err != nil {
		return fmt.Errorf("twilio create message: %w", err)
	}
	return nil
}

// Classify names known Twilio failures. It returns "" for anything else.
func Classify(err error) string {
	var restErr *twilioclient.TwilioRestError
	if !errors.As(err, &restErr) {
		return ""
	}
	switch restErr.Code {
	case codeInvalidNumber:
		return "invalid phone number format"
	case codeUnreachableNumber:
		return "destination unreachable"
	case codeUnverifiedNumber:
		return "unverified number (trial account)"
	case codeCountryNotEnabled:
		return "country not enabled for messaging"
	default:
		return ""
	}
}
