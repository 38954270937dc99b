package models

import "time"

type Category struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Name      string    `json:"name"`
	Color     *string   `json:"color"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CreateCategoryRequest struct {
	Name  string  `json:"name" validate:"required,min=1,max=100"`
	Color *string `json:"color" validate:"omitempty,hexcolor6"`
}

type UpdateCategoryRequest struct {
	Name  *string          `json:"name" validate:"omitempty,min=1,max=100"`
	Color Nullable[string] `json:"color"`
}
