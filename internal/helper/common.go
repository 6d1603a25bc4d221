package helper

import (
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// UserIDKey is the fiber.Ctx local holding the authenticated subject.
const UserIDKey = "user_id"

const (
	defaultPageSize = 50
	maxPageSize     = 100
	// maxPage keeps (page-1)*size far from int overflow.
	maxPage = 100_000
)

type Pagination[T any] struct {
	Page  int  `json:"page"`
	Size  int  `json:"size"`
	Total *int `json:"total"`
	Items []T  `json:"items"`
}

// Offset is the number of rows to skip for the current page.
func (p Pagination[T]) Offset() int {
	return (p.Page - 1) * p.Size
}

func GetPagination[T any](c *fiber.Ctx) Pagination[T] {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	} else if page > maxPage {
		page = maxPage
	}

	size, _ := strconv.Atoi(c.Query("size", strconv.Itoa(defaultPageSize)))
	if size < 1 {
		size = 1
	} else if size > maxPageSize {
		size = maxPageSize
	}

	return Pagination[T]{
		Page:  page,
		Size:  size,
		Total: nil,
		Items: []T{},
	}
}

var validate = validator.New()

func ValidateInput(input interface{}) error {
	return validate.Struct(input)
}

// CurrentUser returns the authenticated user id, or "" when absent.
func CurrentUser(c *fiber.Ctx) string {
	uid, _ := c.Locals(UserIDKey).(string)
	return uid
}

// ErrorBody is the JSON error envelope returned by every endpoint.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes {"error": {"code": ..., "message": ...}} with status.
func WriteError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": ErrorBody{Code: code, Message: message}})
}
