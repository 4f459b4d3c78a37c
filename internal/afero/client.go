package afero

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api2.afero.net/v1"

// HTTPStatusError surfaces non-2xx responses from the Afero API.
type HTTPStatusError struct {
	Status int
	Body   string
}

func (e HTTPStatusError) Error() string {
	return fmt.Sprintf("afero api error %d: %s", e.Status, strings.TrimSpace(e.Body))
}

// TokenSource supplies a bearer token for API calls. Implemented by
// auth.Manager.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Client talks to the Afero (Hubspace) cloud REST API.
type Client struct {
	baseURL string
	tokens  TokenSource

	httpClient *http.Client
	accountID  string
}

// ClientConfig carries client construction options.
type ClientConfig struct {
	BaseURL string
	// HTTPClient overrides the default client, typically to install the
	// rate guard round-tripper.
	HTTPClient *http.Client
}

func NewClient(cfg ClientConfig, tokens TokenSource) (*Client, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token source is required")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	return &Client{
		baseURL:    baseURL,
		tokens:     tokens,
		httpClient: httpClient,
	}, nil
}

// AccountID resolves and caches the account reference for the authenticated
// user.
func (c *Client) AccountID(ctx context.Context) (string, error) {
	if c.accountID != "" {
		return c.accountID, nil
	}

	var resp struct {
		AccountAccess []struct {
			Account struct {
				AccountID string `json:"accountId"`
			} `json:"account"`
		} `json:"accountAccess"`
	}

	if err := c.getJSON(ctx, "/users/me", &resp); err != nil {
		return "", err
	}
	if len(resp.AccountAccess) == 0 {
		return "", fmt.Errorf("no account found in /users/me response")
	}

	c.accountID = resp.AccountAccess[0].Account.AccountID
	return c.accountID, nil
}

type rawMetadevice struct {
	ID           string `json:"id"`
	TypeID       string `json:"typeId"`
	FriendlyName string `json:"friendlyName"`
	Description  struct {
		Device struct {
			DeviceClass  string `json:"deviceClass"`
			Model        string `json:"model"`
			Manufacturer string `json:"manufacturerName"`
		} `json:"device"`
		Functions []struct {
			FunctionClass    string `json:"functionClass"`
			FunctionInstance string `json:"functionInstance"`
			Values           []struct {
				Range *struct {
					Min  float64 `json:"min"`
					Max  float64 `json:"max"`
					Step float64 `json:"step"`
				} `json:"range"`
			} `json:"values"`
		} `json:"functions"`
	} `json:"description"`
	State struct {
		Values []FunctionState `json:"values"`
	} `json:"state"`
}

// Devices fetches all metadevices with their current state.
func (c *Client) Devices(ctx context.Context) ([]Device, []Thermostat, error) {
	account, err := c.AccountID(ctx)
	if err != nil {
		return nil, nil, err
	}

	var raw []rawMetadevice
	path := fmt.Sprintf("/accounts/%s/metadevices?expansions=state", account)
	if err := c.getJSON(ctx, path, &raw); err != nil {
		return nil, nil, err
	}

	var devices []Device
	var thermostats []Thermostat
	for _, m := range raw {
		if m.TypeID != "" && m.TypeID != "metadevice.device" {
			continue
		}
		dev := Device{
			ID:           m.ID,
			Name:         m.FriendlyName,
			DeviceClass:  m.Description.Device.DeviceClass,
			Model:        m.Description.Device.Model,
			Manufacturer: m.Description.Device.Manufacturer,
			States:       m.State.Values,
		}
		devices = append(devices, dev)

		if !isClimateClass(dev.DeviceClass) {
			continue
		}
		var target TemperatureRange
		for _, fn := range m.Description.Functions {
			if fn.FunctionClass != ClassTemperature || fn.FunctionInstance != InstanceTargetTemp {
				continue
			}
			for _, v := range fn.Values {
				if v.Range != nil {
					target = TemperatureRange{Min: v.Range.Min, Max: v.Range.Max, Step: v.Range.Step}
				}
			}
		}
		thermostats = append(thermostats, ThermostatFromDevice(dev, target))
	}

	return devices, thermostats, nil
}

func isClimateClass(class string) bool {
	switch class {
	case "thermostat", "portable-air-conditioner":
		return true
	}
	return false
}

// StateUpdate carries the writable thermostat fields for one set-state
// request. Nil fields are omitted; the API ignores what is not sent.
type StateUpdate struct {
	HVACMode                     *string
	FanMode                      *string
	TargetTemperature            *float64
	TargetTemperatureAutoCooling *float64
	TargetTemperatureAutoHeating *float64
	SleepMode                    *string
	Timer                        *int
}

func (u StateUpdate) values(now time.Time) []FunctionState {
	ts := now.UnixMilli()
	var values []FunctionState
	if u.HVACMode != nil {
		values = append(values, FunctionState{FunctionClass: ClassMode, Value: *u.HVACMode, LastUpdateTime: ts})
	}
	if u.FanMode != nil {
		values = append(values, FunctionState{FunctionClass: ClassFanSpeed, Value: *u.FanMode, LastUpdateTime: ts})
	}
	if u.TargetTemperature != nil {
		values = append(values, FunctionState{FunctionClass: ClassTemperature, FunctionInstance: InstanceTargetTemp, Value: *u.TargetTemperature, LastUpdateTime: ts})
	}
	if u.TargetTemperatureAutoCooling != nil {
		values = append(values, FunctionState{FunctionClass: ClassTemperature, FunctionInstance: InstanceAutoCoolingTarget, Value: *u.TargetTemperatureAutoCooling, LastUpdateTime: ts})
	}
	if u.TargetTemperatureAutoHeating != nil {
		values = append(values, FunctionState{FunctionClass: ClassTemperature, FunctionInstance: InstanceAutoHeatingTarget, Value: *u.TargetTemperatureAutoHeating, LastUpdateTime: ts})
	}
	if u.SleepMode != nil {
		values = append(values, FunctionState{FunctionClass: ClassSleep, Value: *u.SleepMode, LastUpdateTime: ts})
	}
	if u.Timer != nil {
		values = append(values, FunctionState{FunctionClass: ClassTimer, Value: *u.Timer, LastUpdateTime: ts})
	}
	return values
}

// SetState issues a single state-set request for the device. Empty updates
// are rejected before hitting the network.
func (c *Client) SetState(ctx context.Context, deviceID string, update StateUpdate) error {
	values := update.values(time.Now())
	if len(values) == 0 {
		return fmt.Errorf("set state: no fields to set")
	}

	account, err := c.AccountID(ctx)
	if err != nil {
		return err
	}

	body := struct {
		Values []FunctionState `json:"values"`
	}{Values: values}

	path := fmt.Sprintf("/accounts/%s/metadevices/%s/state", account, deviceID)
	start := time.Now()
	err = c.putJSON(ctx, path, body)
	observeSetState(deviceID, time.Since(start), err)
	return err
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) putJSON(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

func (c *Client) do(req *http.Request, out any) error {
	token, err := c.tokens.AccessToken(req.Context())
	if err != nil {
		return fmt.Errorf("afero auth: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return HTTPStatusError{Status: resp.StatusCode, Body: string(data)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", req.URL.Path, err)
	}
	return nil
}
