package outbox

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/akriventsev/commerce/framework/core"
	"github.com/akriventsev/commerce/framework/transport"
)

// Codec реестр команд, которые можно сохранить в outbox и восстановить
type Codec struct {
	mu       sync.RWMutex
	decoders map[string]func(payload []byte) (transport.Command, error)
}

// NewCodec создает пустой реестр
func NewCodec() *Codec {
	return &Codec{decoders: make(map[string]func([]byte) (transport.Command, error))}
}

// RegisterCommand регистрирует тип команды C. Команды кодируются в JSON.
func RegisterCommand[C transport.Command](c *Codec) {
	var zero C
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decoders[zero.CommandName()] = func(payload []byte) (transport.Command, error) {
		var cmd C
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return nil, err
		}
		return cmd, nil
	}
}

// Encode сериализует команду. Незарегистрированные команды отклоняются,
// иначе relay не сможет их восстановить.
func (c *Codec) Encode(cmd transport.Command) (string, []byte, error) {
	name := cmd.CommandName()
	c.mu.RLock()
	_, ok := c.decoders[name]
	c.mu.RUnlock()
	if !ok {
		return "", nil, core.Errorf(core.KindUnhandledCommand, "command %s is not registered in outbox codec", name)
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode %s: %w", name, err)
	}
	return name, payload, nil
}

// Decode восстанавливает команду из записи
func (c *Codec) Decode(commandName string, payload []byte) (transport.Command, error) {
	c.mu.RLock()
	decode, ok := c.decoders[commandName]
	c.mu.RUnlock()
	if !ok {
		return nil, core.Errorf(core.KindUnhandledCommand, "command %s is not registered in outbox codec", commandName)
	}

	cmd, err := decode(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", commandName, err)
	}
	return cmd, nil
}

// CommandNames возвращает зарегистрированные имена команд
func (c *Codec) CommandNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.decoders))
	for name := range c.decoders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
