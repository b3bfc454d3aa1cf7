package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pixvend/internal/config"
	"github.com/pixvend/internal/constants"
	"github.com/pixvend/internal/payment/asaas"
	"github.com/pixvend/internal/payment/efipay"
	"github.com/pixvend/internal/payment/mercadopago"
	"github.com/pixvend/internal/payment/openpix"
)

// GatewayChargeInput 创建收款请求
type GatewayChargeInput struct {
	OrderNo     string
	Amount      string
	Description string
}

// GatewayChargeResult 创建收款结果
type GatewayChargeResult struct {
	TransactionID string
	ChargeCode    string
	QRImage       string
	Raw           map[string]interface{}
}

// GatewayAdapter 支付网关适配器，屏蔽各家 PIX 网关的差异。
type GatewayAdapter interface {
	Name() string
	CreateCharge(ctx context.Context, input GatewayChargeInput) (*GatewayChargeResult, error)
}

// BuildGatewayAdapters 按故障转移顺序构建网关适配器。
// 配置解析推迟到请求时执行，配置错误计入一次失败尝试而不是启动失败。
func BuildGatewayAdapters(cfg *config.PaymentConfig) []GatewayAdapter {
	if cfg == nil {
		return nil
	}
	var adapters []GatewayAdapter
	for _, gw := range cfg.OrderedGateways() {
		adapters = append(adapters, &configuredGateway{
			name: strings.ToLower(strings.TrimSpace(gw.Name)),
			raw:  gw.Config,
		})
	}
	return adapters
}

// configuredGateway 由配置驱动的网关适配器
type configuredGateway struct {
	name string
	raw  map[string]interface{}
}

func (g *configuredGateway) Name() string {
	return g.name
}

func (g *configuredGateway) CreateCharge(ctx context.Context, input GatewayChargeInput) (*GatewayChargeResult, error) {
	switch g.name {
	case constants.GatewayMercadoPago:
		cfg, err := mercadopago.ParseConfig(g.raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGatewayConfigInvalid, err)
		}
		if err := mercadopago.ValidateConfig(cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGatewayConfigInvalid, err)
		}
		result, err := mercadopago.CreateCharge(ctx, cfg, mercadopago.CreateInput{
			OrderNo:     input.OrderNo,
			Amount:      input.Amount,
			Description: input.Description,
		})
		if err != nil {
			return nil, mapGatewayError(err, mercadopago.ErrConfigInvalid, mercadopago.ErrRequestFailed, mercadopago.ErrResponseInvalid)
		}
		return &GatewayChargeResult{
			TransactionID: result.TransactionID,
			ChargeCode:    result.ChargeCode,
			QRImage:       result.QRImage,
			Raw:           result.Raw,
		}, nil
	case constants.GatewayAsaas:
		cfg, err := asaas.ParseConfig(g.raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGatewayConfigInvalid, err)
		}
		if err := asaas.ValidateConfig(cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGatewayConfigInvalid, err)
		}
		result, err := asaas.CreateCharge(ctx, cfg, asaas.CreateInput{
			OrderNo:     input.OrderNo,
			Amount:      input.Amount,
			Description: input.Description,
		})
		if err != nil {
			return nil, mapGatewayError(err, asaas.ErrConfigInvalid, asaas.ErrRequestFailed, asaas.ErrResponseInvalid)
		}
		return &GatewayChargeResult{
			TransactionID: result.TransactionID,
			ChargeCode:    result.ChargeCode,
			QRImage:       result.QRImage,
			Raw:           result.Raw,
		}, nil
	case constants.GatewayEfiPay:
		cfg, err := efipay.ParseConfig(g.raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGatewayConfigInvalid, err)
		}
		if err := efipay.ValidateConfig(cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGatewayConfigInvalid, err)
		}
		result, err := efipay.CreateCharge(ctx, cfg, efipay.CreateInput{
			OrderNo:     input.OrderNo,
			Amount:      input.Amount,
			Description: input.Description,
		})
		if err != nil {
			return nil, mapGatewayError(err, efipay.ErrConfigInvalid, efipay.ErrRequestFailed, efipay.ErrResponseInvalid)
		}
		return &GatewayChargeResult{
			TransactionID: result.TransactionID,
			ChargeCode:    result.ChargeCode,
			QRImage:       result.QRImage,
			Raw:           result.Raw,
		}, nil
	case constants.GatewayOpenPix:
		cfg, err := openpix.ParseConfig(g.raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGatewayConfigInvalid, err)
		}
		if err := openpix.ValidateConfig(cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGatewayConfigInvalid, err)
		}
		result, err := openpix.CreateCharge(ctx, cfg, openpix.CreateInput{
			OrderNo:     input.OrderNo,
			Amount:      input.Amount,
			Description: input.Description,
		})
		if err != nil {
			return nil, mapGatewayError(err, openpix.ErrConfigInvalid, openpix.ErrRequestFailed, openpix.ErrResponseInvalid)
		}
		return &GatewayChargeResult{
			TransactionID: result.TransactionID,
			ChargeCode:    result.ChargeCode,
			QRImage:       result.QRImage,
			Raw:           result.Raw,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrGatewayNotSupported, g.name)
	}
}

func mapGatewayError(err, configInvalid, requestFailed, responseInvalid error) error {
	switch {
	case errors.Is(err, configInvalid):
		return fmt.Errorf("%w: %v", ErrGatewayConfigInvalid, err)
	case errors.Is(err, requestFailed):
		return fmt.Errorf("%w: %v", ErrGatewayRequestFailed, err)
	case errors.Is(err, responseInvalid):
		return fmt.Errorf("%w: %v", ErrGatewayResponseInvalid, err)
	default:
		return fmt.Errorf("%w: %v", ErrGatewayRequestFailed, err)
	}
}
