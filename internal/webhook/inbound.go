package webhook

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const signatureHeader = "X-Twilio-Signature"

// Inbound receives a form-encoded message from the messaging provider,
// verifies its signature, and republishes it onto the durable stream. The
// response body is TwiML; an empty document tells the provider not to
// reply.
func Inbound(d Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if ok, reason := d.Health.StreamReady(); !ok {
			d.Logger.Error("rejecting inbound message, stream unavailable", "reason", reason)
			return fiber.NewError(fiber.StatusInternalServerError, "internal server error")
		}

		params := formParams(c)

		if !d.Validator.Valid(c.Get(signatureHeader), params) {
			d.Logger.Warn("inbound request failed signature check")
			return fiber.NewError(fiber.StatusUnauthorized, "not authorized")
		}

		entry := make(map[string]interface{}, len(params)+1)
		for k, v := range params {
			entry[k] = v
		}
		entry["received_datetime"] = time.Now().UTC().Format(time.RFC3339)

		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		err := d.Cache.XAdd(ctx, &redis.XAddArgs{
			Stream: d.Cfg.StreamKey,
			Values: entry,
		}).Err()
		if err != nil {
			d.Logger.Error("publish inbound message to stream", "error", err)
			return fiber.NewError(fiber.StatusInternalServerError, "internal server error")
		}

		c.Set(fiber.HeaderContentType, fiber.MIMETextHTML)
		return c.Status(fiber.StatusOK).SendString("<Response></Response>")
	}
}

func formParams(c *fiber.Ctx) map[string]string {
	params := make(map[string]string)
	c.Request().PostArgs().VisitAll(func(k, v []byte) {
		params[string(k)] = string(v)
	})
	return params
}
