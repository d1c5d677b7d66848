package api

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// bind decodes the JSON body into v and runs its validate tags.
func (h *Handler) bind(c *fiber.Ctx, v any) error {
	if len(c.Body()) > 0 {
		if err := c.BodyParser(v); err != nil {
			return ErrInvalidBody
		}
	}
	return h.Validator.Validate(v)
}

// bindOptional is bind for bodies the client may leave out. It reports
// whether a body was sent.
func (h *Handler) bindOptional(c *fiber.Ctx, v any) (bool, error) {
	if len(c.Body()) == 0 {
		return false, nil
	}
	return true, h.bind(c, v)
}

// queryBool reads "true" or "false". Anything else counts as not given.
func queryBool(c *fiber.Ctx, key string) *bool {
	switch strings.ToLower(c.Query(key)) {
	case "true":
		v := true
		return &v
	case "false":
		v := false
		return &v
	}
	return nil
}

func queryIntPtr(c *fiber.Ctx, key string) *int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return nil
	}
	return &n
}

// queryList splits a comma separated parameter and drops empty entries.
func queryList(c *fiber.Ctx, key string) []string {
	var out []string
	for _, s := range strings.Split(c.Query(key), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// filters echoes the applied query parameters, leaving out empty ones.
func filters(c *fiber.Ctx, keys ...string) fiber.Map {
	out := fiber.Map{}
	for _, k := range keys {
		if v := c.Query(k); v != "" {
			out[k] = v
		}
	}
	return out
}
