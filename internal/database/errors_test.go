package database

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ErrorClassPermanent},
		{"serialization", &pq.Error{Code: "40001"}, ErrorClassSerialization},
		{"deadlock", &pq.Error{Code: "40P01"}, ErrorClassDeadlock},
		{"lock timeout", &pq.Error{Code: "55P03"}, ErrorClassTransient},
		{"unique violation", &pq.Error{Code: "23505"}, ErrorClassPermanent},
		{"wrapped deadlock", fmt.Errorf("update stock: %w", &pq.Error{Code: "40P01"}), ErrorClassDeadlock},
		{"no rows", sql.ErrNoRows, ErrorClassPermanent},
		{"plain", errors.New("boom"), ErrorClassPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&pq.Error{Code: "40001"}))
	assert.True(t, IsRetryable(&pq.Error{Code: "55P03"}))
	assert.False(t, IsRetryable(&pq.Error{Code: "23514"}))
	assert.False(t, IsRetryable(ErrInsufficientStock))
}

func TestConstraintHelpers(t *testing.T) {
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})))
	assert.True(t, IsForeignKeyViolation(&pq.Error{Code: "23503"}))
	assert.True(t, IsCheckViolation(&pq.Error{Code: "23514"}))
	assert.True(t, IsCheckViolation(&pq.Error{Code: "23502"}))
	assert.False(t, IsUniqueViolation(errors.New("23505")))
}

func TestInsufficientStockError(t *testing.T) {
	err := fmt.Errorf("place order: %w", &InsufficientStockError{ProductID: 7, ProductName: "Milk", Requested: 3, Available: 1})

	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.NotErrorIs(t, err, ErrProductNotFound)
	assert.Contains(t, err.Error(), "Insufficient stock for Milk")

	var stockErr *InsufficientStockError
	if assert.ErrorAs(t, err, &stockErr) {
		assert.Equal(t, int64(7), stockErr.ProductID)
	}
}

func TestProductNotFoundError(t *testing.T) {
	err := fmt.Errorf("place order: %w", &ProductNotFoundError{ProductID: 42})

	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.NotErrorIs(t, err, ErrInsufficientStock)
	assert.Contains(t, err.Error(), "Product 42 not found")
}
