package broker

import "testing"

func TestValidateOCO_Valid(t *testing.T) {
	req := GTTRequest{
		Type:          GTTOCO,
		TriggerValues: []float64{90, 110},
		LastPrice:     100,
	}
	if err := ValidateOCO(req); err != nil {
		t.Errorf("expected valid oco, got %v", err)
	}
}

func TestValidateOCO_StoplossAboveLastPrice(t *testing.T) {
	req := GTTRequest{
		Type:          GTTOCO,
		TriggerValues: []float64{105, 110},
		LastPrice:     100,
	}
	if err := ValidateOCO(req); err == nil {
		t.Error("expected error when stoploss >= last_price")
	}
}

func TestValidateOCO_TargetBelowLastPrice(t *testing.T) {
	req := GTTRequest{
		Type:          GTTOCO,
		TriggerValues: []float64{90, 95},
		LastPrice:     100,
	}
	if err := ValidateOCO(req); err == nil {
		t.Error("expected error when target <= last_price")
	}
}

func TestValidateOCO_WrongTriggerCount(t *testing.T) {
	req := GTTRequest{
		Type:          GTTOCO,
		TriggerValues: []float64{90},
		LastPrice:     100,
	}
	if err := ValidateOCO(req); err == nil {
		t.Error("expected error for wrong trigger count")
	}
}

func TestValidateOCO_SingleTypeSkipsValidation(t *testing.T) {
	req := GTTRequest{Type: GTTSingle, TriggerValues: []float64{105}, LastPrice: 100}
	if err := ValidateOCO(req); err != nil {
		t.Errorf("single-trigger gtt should not be validated as oco: %v", err)
	}
}

func TestOrderStatus_Terminal(t *testing.T) {
	terminal := []OrderStatus{StatusComplete, StatusRejected, StatusCancelled, StatusTimeout}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	if StatusPending.Terminal() {
		t.Error("pending should not be terminal")
	}
}
