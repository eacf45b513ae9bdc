package demo

import (
	_ "embed"
	"time"

	"github.com/google/uuid"

	"github.com/dragos-durlut/TemporalTables/internal/model"
	"github.com/dragos-durlut/TemporalTables/internal/temporal"
)

//go:embed model.cue
var modelSource []byte

// Customer places orders. Deleting a customer keeps its history.
type Customer struct {
	temporal.Period
	ID     uuid.UUID
	Name   string
	Orders []*Order
}

// Order is one purchase of a product.
type Order struct {
	temporal.Period
	ID         uuid.UUID
	OrderDate  time.Time
	CustomerID uuid.UUID
	ProductID  uuid.UUID
	Customer   *Customer
	Product    *Product
}

// Product is a priced catalogue item.
type Product struct {
	temporal.Period
	ID            uuid.UUID
	Name          string
	Price         float64
	ProductTypeID int64
	ProductType   *ProductType
	Orders        []*Order
}

type ProductType struct {
	ID             int64
	Name           string
	ProductClassID int64
	ProductClass   *ProductClass
	Products       []*Product
}

type ProductClass struct {
	ID           int64
	Name         string
	ProductTypes []*ProductType
}

// Registry binds the demo entity names to their Go types.
func Registry() *model.Registry {
	reg := model.NewRegistry()
	model.Register[Customer](reg, "Customer")
	model.Register[Order](reg, "Order")
	model.Register[Product](reg, "Product")
	model.Register[ProductType](reg, "ProductType")
	model.Register[ProductClass](reg, "ProductClass")
	return reg
}

// Model loads the embedded demo model.
func Model() (*model.Model, error) {
	return model.LoadCUE(modelSource, "model.cue", Registry())
}

// ModelSource returns the embedded CUE model.
func ModelSource() []byte { return modelSource }
