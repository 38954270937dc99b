package models

import "expense-tracker-server/src/money"

const UncategorizedName = "Uncategorized"

type Summary struct {
	Income       money.Amount `json:"total_income"`
	Expense      money.Amount `json:"total_expense"`
	Balance      money.Amount `json:"balance"`
	Transactions int          `json:"total_transactions"`
}

type MonthlyTotal struct {
	Period       string       `json:"period"`
	Income       money.Amount `json:"income"`
	Expense      money.Amount `json:"expense"`
	Balance      money.Amount `json:"balance"`
	Transactions int          `json:"total"`
}

type CategoryTotal struct {
	CategoryID   *int64       `json:"category_id"`
	Name         string       `json:"category_name"`
	Color        *string      `json:"category_color"`
	Income       money.Amount `json:"income"`
	Expense      money.Amount `json:"expense"`
	Balance      money.Amount `json:"balance"`
	Transactions int          `json:"total"`
}

type CategoryReport struct {
	Items      []CategoryTotal `json:"items"`
	Pagination Pagination      `json:"pagination"`
}
