// Package dish is a minimal client for the Starlink dish's local gRPC API.
//
// The dish exposes one unary method, SpaceX.API.Device.Device/Handle, that
// takes a Request envelope with one request arm set and returns a Response
// envelope with an application status and the matching response arm. This
// package encodes only the messages the bridge needs (get_device_info and
// get_location) directly with protowire, through a forced gRPC codec.
//
// # Failure model
//
// Two kinds of failure are kept apart:
//
//   - Transport failures (dish unreachable, call timeout, closed client,
//     undecodable bytes) are returned as errors wrapping ErrTransport.
//   - A non-zero application status is a normal result. The returned value
//     carries the Status, has no payload, and a warning is logged.
//
// # Usage
//
//	client, err := dish.Dial(dish.Config{Target: "192.168.100.1:9200"})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	pos, err := client.GetPosition(ctx)
//	switch {
//	case errors.Is(err, dish.ErrTransport):
//	    // dish unreachable this cycle
//	case pos.HasFix():
//	    fmt.Println(pos.LLA.Lat, pos.LLA.Lon)
//	}
package dish
