package server

import "github.com/gofiber/fiber/v2"

// AboutAuthor handles GET /about/author/
func (s *Server) AboutAuthor(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"title": "About the author",
		"text":  "Yatube is a small blogging platform where authors write posts, gather them into groups and follow each other.",
	})
}

// AboutTech handles GET /about/tech/
func (s *Server) AboutTech(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"title": "Technologies",
		"stack": []string{
			"Go",
			"Fiber",
			"GORM (PostgreSQL, SQLite)",
			"Redis",
			"MinIO",
			"NATS",
			"Prometheus",
			"OpenTelemetry",
		},
	})
}
