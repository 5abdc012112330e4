/*
elements.go - Financial element constructors

PURPOSE:
  Builders for the four element kinds the engine assigns to payment periods.
  They only shape the struct; id generation, period resolution and
  persistence happen in engine.Resolver.CreateElement.
*/
package freight

import (
	"github.com/shopspring/decimal"

	"github.com/fleetops/payroll-engine/engine"
)

// NewLoad builds a load element. Pickup and delivery dates both travel on the
// element; the company's assignment criterion picks which one matters.
func NewLoad(companyID engine.CompanyID, driverID engine.UserID, pickup, delivery engine.Date, amount decimal.Decimal) engine.Element {
	return engine.Element{
		Kind:         engine.KindLoad,
		CompanyID:    companyID,
		UserID:       driverID,
		PickupDate:   &pickup,
		DeliveryDate: &delivery,
		Amount:       amount,
	}
}

// NewFuelExpense builds a fuel expense dated by when the fuel was bought.
func NewFuelExpense(companyID engine.CompanyID, driverID engine.UserID, date engine.Date, amount decimal.Decimal) engine.Element {
	return engine.Element{
		Kind:      engine.KindFuelExpense,
		CompanyID: companyID,
		UserID:    driverID,
		EventDate: &date,
		Amount:    amount,
	}
}

// NewDeduction builds a deduction (insurance, advances, escrow and the like).
func NewDeduction(companyID engine.CompanyID, driverID engine.UserID, date engine.Date, amount decimal.Decimal, description string) engine.Element {
	return engine.Element{
		Kind:        engine.KindDeduction,
		CompanyID:   companyID,
		UserID:      driverID,
		EventDate:   &date,
		Amount:      amount,
		Description: description,
	}
}

// NewOtherIncome builds a non-load income item (detention, layover, bonuses).
func NewOtherIncome(companyID engine.CompanyID, driverID engine.UserID, date engine.Date, amount decimal.Decimal, description string) engine.Element {
	return engine.Element{
		Kind:        engine.KindOtherIncome,
		CompanyID:   companyID,
		UserID:      driverID,
		EventDate:   &date,
		Amount:      amount,
		Description: description,
	}
}
