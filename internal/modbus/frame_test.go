package modbus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameEncodeDecode(t *testing.T) {
	req := ReadHoldingRegistersRequest(7, 1, 0x0010, 3)
	req.TransactionID = 0x0102

	data := req.Encode()
	assert.Equal(t, []byte{
		0x01, 0x02, // transaction
		0x00, 0x00, // protocol
		0x00, 0x06, // length
		0x01,       // unit
		0x03,       // function
		0x00, 0x10, // address
		0x00, 0x03, // quantity
	}, data)

	decoded, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0102), decoded.TransactionID)
	assert.Equal(t, uint8(1), decoded.UnitID)
	assert.Equal(t, uint8(FuncCodeReadHoldingRegisters), decoded.FunctionCode)
	assert.Equal(t, []byte{0x00, 0x10, 0x00, 0x03}, decoded.Data)
}

func TestDecodeFrameErrors(t *testing.T) {
	_, err := DecodeFrame([]byte{0, 1, 0, 0, 0, 2, 1})
	assert.Error(t, err, "too short")

	_, err = DecodeFrame([]byte{0, 1, 0, 1, 0, 2, 1, 3})
	assert.Error(t, err, "protocol id")

	_, err = DecodeFrame([]byte{0, 1, 0, 0, 0, 9, 1, 3})
	assert.Error(t, err, "length mismatch")
}

func TestParseRegisterResponse(t *testing.T) {
	f := &ModbusFrame{
		FunctionCode: FuncCodeReadHoldingRegisters,
		Data:         []byte{4, 0x12, 0x34, 0xFF, 0xFE},
	}
	regs, err := f.ParseRegisterResponse()
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x1234, 0xFFFE}, regs)

	f.Data = []byte{4, 0x12}
	_, err = f.ParseRegisterResponse()
	assert.Error(t, err)
}

func TestExceptionResponse(t *testing.T) {
	f := &ModbusFrame{FunctionCode: FuncCodeReadHoldingRegisters | 0x80, Data: []byte{0x02}}

	_, err := f.ParseRegisterResponse()
	var exc *ExceptionError
	require.True(t, errors.As(err, &exc))
	assert.Equal(t, uint8(FuncCodeReadHoldingRegisters), exc.FunctionCode)
	assert.Equal(t, uint8(0x02), exc.Code)
}

func TestWriteMultipleRegistersRequest(t *testing.T) {
	f := WriteMultipleRegistersRequest(1, 2, 0x0100, []uint16{0xAABB, 0x0001})
	assert.Equal(t, []byte{0x01, 0x00, 0x00, 0x02, 0x04, 0xAA, 0xBB, 0x00, 0x01}, f.Data)
}
