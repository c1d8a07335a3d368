package reconciler

var DeviceOperations = deviceOperations
