package fluxq

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/exp/constraints"
)

// Accumulator is the strategy behind the numeric consumers: it supplies the
// starting state, folds one value into the state, and turns the final state
// into a result.
type Accumulator[T, A, R any] interface {
	Identity() A
	Add(acc A, value T) (A, error)
	Result(acc A) (R, error)
}

// AccumulatingConsumer runs an Accumulator over a sequence. The result is
// computed on completion, so a failed run leaves it at the zero value.
type AccumulatingConsumer[T, A, R any] struct {
	ConsumerBase[R]
	strategy Accumulator[T, A, R]
	acc      A
}

// NewAccumulatingConsumer creates a consumer driven by strategy.
func NewAccumulatingConsumer[T, A, R any](strategy Accumulator[T, A, R]) *AccumulatingConsumer[T, A, R] {
	return &AccumulatingConsumer[T, A, R]{strategy: strategy, acc: strategy.Identity()}
}

// ProcessNext implements the Chain interface for AccumulatingConsumer.
func (c *AccumulatingConsumer[T, A, R]) ProcessNext(item T) (ChainStatus, error) {
	acc, err := c.strategy.Add(c.acc, item)
	if err != nil {
		return Stop, err
	}
	c.acc = acc
	return Flow, nil
}

// ChainComplete implements the Chain interface for AccumulatingConsumer.
func (c *AccumulatingConsumer[T, A, R]) ChainComplete() error {
	r, err := c.strategy.Result(c.acc)
	if err != nil {
		return err
	}
	c.result = r
	return nil
}

func addChecked[T constraints.Signed](a, b T) (T, bool) {
	s := a + b
	if (b > 0 && s < a) || (b < 0 && s > a) {
		return s, false
	}
	return s, true
}

func typeName[T any]() string {
	var zero T
	return fmt.Sprintf("%T", zero)
}

// IntegerSum sums signed integers with overflow checking in their own width.
type IntegerSum[T constraints.Signed] struct{}

func (IntegerSum[T]) Identity() T { return 0 }

func (IntegerSum[T]) Add(acc, value T) (T, error) {
	s, ok := addChecked(acc, value)
	if !ok {
		return acc, NewOverflowError(typeName[T]() + " sum")
	}
	return s, nil
}

func (IntegerSum[T]) Result(acc T) (T, error) { return acc, nil }

// IntegerMeanState is the running state of IntegerMean.
type IntegerMeanState struct {
	Sum   int64
	Count int64
}

// IntegerMean averages signed integers. The running sum is checked in int64
// regardless of the element width.
type IntegerMean[T constraints.Signed] struct{}

func (IntegerMean[T]) Identity() IntegerMeanState { return IntegerMeanState{} }

func (IntegerMean[T]) Add(acc IntegerMeanState, value T) (IntegerMeanState, error) {
	s, ok := addChecked(acc.Sum, int64(value))
	if !ok {
		return acc, NewOverflowError(typeName[T]() + " average")
	}
	return IntegerMeanState{Sum: s, Count: acc.Count + 1}, nil
}

func (IntegerMean[T]) Result(acc IntegerMeanState) (float64, error) {
	if acc.Count == 0 {
		return 0, ErrNoElements
	}
	return float64(acc.Sum) / float64(acc.Count), nil
}

// FloatSum sums floating point values in a float64 buffer and narrows to T
// at the end. It never reports overflow; the result may be infinite.
type FloatSum[T constraints.Float] struct{}

func (FloatSum[T]) Identity() float64 { return 0 }

func (FloatSum[T]) Add(acc float64, value T) (float64, error) {
	return acc + float64(value), nil
}

func (FloatSum[T]) Result(acc float64) (T, error) { return T(acc), nil }

// FloatMeanState is the running state of FloatMean.
type FloatMeanState struct {
	Sum   float64
	Count int64
}

// FloatMean averages floating point values in float64 and narrows to T.
type FloatMean[T constraints.Float] struct{}

func (FloatMean[T]) Identity() FloatMeanState { return FloatMeanState{} }

func (FloatMean[T]) Add(acc FloatMeanState, value T) (FloatMeanState, error) {
	return FloatMeanState{Sum: acc.Sum + float64(value), Count: acc.Count + 1}, nil
}

func (FloatMean[T]) Result(acc FloatMeanState) (T, error) {
	if acc.Count == 0 {
		return 0, ErrNoElements
	}
	return T(acc.Sum / float64(acc.Count)), nil
}

// DecimalSum sums decimals exactly.
type DecimalSum struct{}

func (DecimalSum) Identity() decimal.Decimal { return decimal.Zero }

func (DecimalSum) Add(acc, value decimal.Decimal) (decimal.Decimal, error) {
	return acc.Add(value), nil
}

func (DecimalSum) Result(acc decimal.Decimal) (decimal.Decimal, error) { return acc, nil }

// DecimalMeanState is the running state of DecimalMean.
type DecimalMeanState struct {
	Sum   decimal.Decimal
	Count int64
}

// DecimalMean averages decimals.
type DecimalMean struct{}

func (DecimalMean) Identity() DecimalMeanState { return DecimalMeanState{Sum: decimal.Zero} }

func (DecimalMean) Add(acc DecimalMeanState, value decimal.Decimal) (DecimalMeanState, error) {
	return DecimalMeanState{Sum: acc.Sum.Add(value), Count: acc.Count + 1}, nil
}

func (DecimalMean) Result(acc DecimalMeanState) (decimal.Decimal, error) {
	if acc.Count == 0 {
		return decimal.Zero, ErrNoElements
	}
	return acc.Sum.Div(decimal.NewFromInt(acc.Count)), nil
}

// Nullable lifts a strategy to pointer values: nil values contribute nothing.
// When the inner strategy has nothing to report (ErrNoElements) the result is
// nil instead of an error.
type Nullable[T, A, R any] struct {
	Inner Accumulator[T, A, R]
}

func (n Nullable[T, A, R]) Identity() A { return n.Inner.Identity() }

func (n Nullable[T, A, R]) Add(acc A, value *T) (A, error) {
	if value == nil {
		return acc, nil
	}
	return n.Inner.Add(acc, *value)
}

func (n Nullable[T, A, R]) Result(acc A) (*R, error) {
	r, err := n.Inner.Result(acc)
	if errors.Is(err, ErrNoElements) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func accumulate[T, A, R any](c Consumable[T], strategy Accumulator[T, A, R]) (R, error) {
	return Consume[T, R](c, NewAccumulatingConsumer(strategy))
}

// Sum adds signed integers. An empty sequence sums to 0; overflow in T
// returns ErrOverflow.
func Sum[T constraints.Signed](c Consumable[T]) (T, error) {
	return accumulate[T, T, T](c, IntegerSum[T]{})
}

// SumBy projects each item to a signed integer and sums the projections.
func SumBy[S any, T constraints.Signed](c Consumable[S], selector func(S) T) (T, error) {
	if c == nil {
		return 0, NewArgumentError("consumable", ErrArgumentNull)
	}
	if selector == nil {
		return 0, NewArgumentError("selector", ErrArgumentNull)
	}
	return Sum(Select(c, selector))
}

// SumFloat adds floating point values, accumulating in float64.
func SumFloat[T constraints.Float](c Consumable[T]) (T, error) {
	return accumulate[T, float64, T](c, FloatSum[T]{})
}

// SumDecimal adds decimals exactly.
func SumDecimal(c Consumable[decimal.Decimal]) (decimal.Decimal, error) {
	return accumulate[decimal.Decimal, decimal.Decimal, decimal.Decimal](c, DecimalSum{})
}

// SumNullable adds the non-nil values. The result is never nil.
func SumNullable[T constraints.Signed](c Consumable[*T]) (*T, error) {
	return accumulate[*T, T, *T](c, Nullable[T, T, T]{Inner: IntegerSum[T]{}})
}

// Average returns the arithmetic mean of signed integers. An empty sequence
// returns ErrNoElements; a running sum beyond int64 returns ErrOverflow.
func Average[T constraints.Signed](c Consumable[T]) (float64, error) {
	return accumulate[T, IntegerMeanState, float64](c, IntegerMean[T]{})
}

// AverageBy projects each item to a signed integer and averages the projections.
func AverageBy[S any, T constraints.Signed](c Consumable[S], selector func(S) T) (float64, error) {
	if c == nil {
		return 0, NewArgumentError("consumable", ErrArgumentNull)
	}
	if selector == nil {
		return 0, NewArgumentError("selector", ErrArgumentNull)
	}
	return Average(Select(c, selector))
}

// AverageFloat returns the mean of floating point values. An empty sequence
// returns ErrNoElements.
func AverageFloat[T constraints.Float](c Consumable[T]) (T, error) {
	return accumulate[T, FloatMeanState, T](c, FloatMean[T]{})
}

// AverageDecimal returns the mean of decimals.
func AverageDecimal(c Consumable[decimal.Decimal]) (decimal.Decimal, error) {
	return accumulate[decimal.Decimal, DecimalMeanState, decimal.Decimal](c, DecimalMean{})
}

// AverageNullable returns the mean of the non-nil values, or nil when there
// are none.
func AverageNullable[T constraints.Signed](c Consumable[*T]) (*float64, error) {
	return accumulate[*T, IntegerMeanState, *float64](c, Nullable[T, IntegerMeanState, float64]{Inner: IntegerMean[T]{}})
}
