package indicators

import (
	"sync"

	"github.com/yourusername/quantcapital-engine/pkg/entity"
)

// symbolState is the per-symbol indicator set the annotator maintains.
type symbolState struct {
	ma5, ma10, ma20, ma60 *SMA
	macd                  *MACD
	rsi                   *RSI
	boll                  *Bollinger
}

func newSymbolState(maxHistory int) *symbolState {
	return &symbolState{
		ma5:  NewSMA(5, maxHistory),
		ma10: NewSMA(10, maxHistory),
		ma20: NewSMA(20, maxHistory),
		ma60: NewSMA(60, maxHistory),
		macd: NewMACD(12, 26, 9, maxHistory),
		rsi:  NewRSI(14, maxHistory),
		boll: NewBollinger(20, 2, maxHistory),
	}
}

// Annotator maintains the standard indicator set per symbol and stamps
// each incoming bar with the computed values.
type Annotator struct {
	mu         sync.Mutex
	maxHistory int
	symbols    map[string]*symbolState
}

// NewAnnotator creates an annotator keeping maxHistory values per
// indicator.
func NewAnnotator(maxHistory int) *Annotator {
	return &Annotator{
		maxHistory: maxHistory,
		symbols:    make(map[string]*symbolState),
	}
}

// Annotate feeds the bar into the symbol's indicators and attaches the
// resulting values to bar.Indicators. Indicators that are not warmed up
// yet report zero.
func (a *Annotator) Annotate(bar *entity.Bar) {
	a.mu.Lock()
	state, ok := a.symbols[bar.Symbol]
	if !ok {
		state = newSymbolState(a.maxHistory)
		a.symbols[bar.Symbol] = state
	}
	a.mu.Unlock()

	state.ma5.Update(bar)
	state.ma10.Update(bar)
	state.ma20.Update(bar)
	state.ma60.Update(bar)
	state.macd.Update(bar)
	state.rsi.Update(bar)
	state.boll.Update(bar)

	bar.Indicators = &entity.BarIndicators{
		MA5:           state.ma5.Value(),
		MA10:          state.ma10.Value(),
		MA20:          state.ma20.Value(),
		MA60:          state.ma60.Value(),
		MACDDif:       state.macd.DIF(),
		MACDDea:       state.macd.DEA(),
		MACDHistogram: state.macd.Histogram(),
		RSI14:         state.rsi.Value(),
		BollUpper:     state.boll.Upper(),
		BollMiddle:    state.boll.Middle(),
		BollLower:     state.boll.Lower(),
	}
}

// Reset drops all per-symbol state.
func (a *Annotator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.symbols = make(map[string]*symbolState)
}
