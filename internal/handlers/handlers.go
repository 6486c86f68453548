package handlers

import "github.com/gofiber/fiber/v2"

// requestID returns the id the requestid middleware assigned to this
// request. Logged on error paths so system_logs rows can be joined
// back to the access log line.
func requestID(c *fiber.Ctx) string {
	id, _ := c.Locals("requestid").(string)
	return id
}
